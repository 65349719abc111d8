package dispatch

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome tag of a Result
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of one invocation: a success carrying value and text,
// or a failure carrying kind and message. The zero value is not valid.
type Result struct {
	Status  Status
	Value   float64
	Text    string
	Kind    ErrorKind
	Message string
}

// Success creates a successful result
func Success(value float64, text string) Result {
	return Result{Status: StatusOK, Value: value, Text: text}
}

// Failure creates a failed result
func Failure(kind ErrorKind, format string, args ...any) Result {
	return Result{Status: StatusError, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the invocation succeeded
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// String renders the result the way agent runtimes read it
func (r Result) String() string {
	if r.OK() {
		return r.Text
	}
	return fmt.Sprintf("Error [%s]: %s", r.Kind, r.Message)
}

type successJSON struct {
	Status Status  `json:"status"`
	Value  float64 `json:"value"`
	Text   string  `json:"text"`
}

type failureJSON struct {
	Status  Status    `json:"status"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// MarshalJSON encodes only the fields of the result's variant
func (r Result) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(successJSON{Status: r.Status, Value: r.Value, Text: r.Text})
	}
	return json.Marshal(failureJSON{Status: StatusError, Kind: r.Kind, Message: r.Message})
}

// UnmarshalJSON decodes either variant
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status  Status    `json:"status"`
		Value   float64   `json:"value"`
		Text    string    `json:"text"`
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case StatusOK:
		*r = Success(raw.Value, raw.Text)
	case StatusError:
		*r = Result{Status: StatusError, Kind: raw.Kind, Message: raw.Message}
	default:
		return fmt.Errorf("unknown result status: %q", raw.Status)
	}
	return nil
}

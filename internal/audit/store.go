package audit

import (
	"encoding/json"
	"time"

	"github.com/hession/calcmate/internal/dispatch"
)

// Transports recorded in entries
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
	TransportCLI  = "cli"
)

// Store invocation audit storage interface
type Store interface {
	// Record saves one entry, assigning ID and CreatedAt when empty
	Record(entry *Entry) error
	// Recent returns the newest entries first
	Recent(limit int) ([]*Entry, error)
	// Summary aggregates entries per operation
	Summary() ([]*OperationSummary, error)

	// Close connection
	Close() error
}

// Entry one recorded invocation
type Entry struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	Transport  string          `json:"transport"`
	Endpoint   string          `json:"endpoint,omitempty"`
	Operation  string          `json:"operation"`
	Status     dispatch.Status `json:"status"`
	Kind       string          `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Arguments  string          `json:"arguments"` // JSON object
	HTTPStatus int             `json:"http_status,omitempty"`
	DurationMS float64         `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OperationSummary per-operation invocation counts
type OperationSummary struct {
	Operation     string  `json:"operation"`
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// NewEntry builds an entry from a completed invocation; transport-specific
// fields (request ID, client IP, HTTP status) are filled in by the caller
func NewEntry(transport string, req dispatch.Request, res dispatch.Result, duration time.Duration) *Entry {
	entry := &Entry{
		Transport:  transport,
		Operation:  req.OperationName,
		Status:     res.Status,
		Arguments:  encodeArguments(req.Arguments),
		DurationMS: float64(duration.Microseconds()) / 1000,
	}
	if res.OK() {
		entry.Message = res.Text
	} else {
		entry.Kind = string(res.Kind)
		entry.Message = res.Message
	}
	return entry
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// NopStore discards entries; used when auditing is disabled
type NopStore struct{}

func (NopStore) Record(*Entry) error                   { return nil }
func (NopStore) Recent(int) ([]*Entry, error)          { return nil, nil }
func (NopStore) Summary() ([]*OperationSummary, error) { return nil, nil }
func (NopStore) Close() error                          { return nil }

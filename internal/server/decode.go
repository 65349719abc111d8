package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
)

// invocationBody is the /execute and /tools/{name} request body.
// "name" is accepted as an alias of "operation_name".
type invocationBody struct {
	OperationName string          `json:"operation_name"`
	Name          string          `json:"name"`
	Arguments     json.RawMessage `json:"arguments"`
}

// decodeInvocation parses a request body. pathName, when set, names the
// operation and any name inside the body is ignored. On error the returned
// request still carries the operation name when one could be read.
func decodeInvocation(body []byte, pathName string) (dispatch.Request, error) {
	var parsed invocationBody
	if len(bytes.TrimSpace(body)) > 0 {
		if err := parseJSON(body, &parsed); err != nil {
			return dispatch.NewRequest(pathName, nil), fmt.Errorf("request body is not valid JSON: %w", err)
		}
	}

	name := pathName
	if name == "" {
		name = strings.TrimSpace(parsed.OperationName)
		if name == "" {
			name = strings.TrimSpace(parsed.Name)
		}
	}
	if name == "" {
		return dispatch.Request{}, errors.New("operation_name is required")
	}

	args, err := decodeArguments(parsed.Arguments)
	if err != nil {
		return dispatch.NewRequest(name, nil), err
	}

	return dispatch.NewRequest(name, args), nil
}

// decodeArguments accepts an object, a JSON string holding an object, or nothing
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("arguments string is malformed: %w", err)
		}
		if strings.TrimSpace(encoded) == "" {
			return map[string]any{}, nil
		}
		raw = json.RawMessage(encoded)
	}

	var args map[string]any
	if err := parseJSON(raw, &args); err != nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

// parseJSON decodes data keeping numbers as json.Number; malformed input
// (trailing commas, single quotes, unquoted keys) is repaired once and retried
func parseJSON(data []byte, v any) error {
	err := decodeNumbers(data, v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return err
	}
	if retryErr := decodeNumbers([]byte(repaired), v); retryErr != nil {
		return err
	}
	logger.Debug("Repaired malformed JSON payload: %s", repaired)
	return nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

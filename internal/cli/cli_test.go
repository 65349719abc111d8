package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/tools"
)

func newTestREPL(opts ...Option) (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out)}, opts...)
	return New(dispatch.New(tools.NewDefaultRegistry()), opts...), &out
}

func TestParseLine(t *testing.T) {
	r, _ := newTestREPL()

	tests := []struct {
		name     string
		line     string
		wantName string
		wantArgs map[string]any
		wantErr  bool
	}{
		{
			name:     "positional",
			line:     "add 10 5",
			wantName: "add",
			wantArgs: map[string]any{"a": "10", "b": "5"},
		},
		{
			name:     "named",
			line:     "power base=2 exponent=8",
			wantName: "power",
			wantArgs: map[string]any{"base": "2", "exponent": "8"},
		},
		{
			name:     "named then positional",
			line:     "divide b=4 12",
			wantName: "divide",
			wantArgs: map[string]any{"a": "12", "b": "4"},
		},
		{
			name:     "missing argument left for dispatcher",
			line:     "sqrt",
			wantName: "sqrt",
			wantArgs: map[string]any{},
		},
		{
			name:     "unknown operation",
			line:     "modulo 1 2",
			wantName: "modulo",
			wantArgs: map[string]any{},
		},
		{
			name:    "too many arguments",
			line:    "sqrt 4 9",
			wantErr: true,
		},
		{
			name:    "empty key",
			line:    "add =1 2",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := r.parseLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseLine(%q) expected error, got %+v", tt.line, req)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLine(%q) unexpected error: %v", tt.line, err)
			}
			if req.OperationName != tt.wantName {
				t.Errorf("OperationName = %q, want %q", req.OperationName, tt.wantName)
			}
			if len(req.Arguments) != len(tt.wantArgs) {
				t.Fatalf("Arguments = %v, want %v", req.Arguments, tt.wantArgs)
			}
			for k, v := range tt.wantArgs {
				if req.Arguments[k] != v {
					t.Errorf("Arguments[%q] = %v, want %v", k, req.Arguments[k], v)
				}
			}
		})
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"add 10 5", "Result: 10 + 5 = 15"},
		{"multiply 4 25.5", "Result: 4 * 25.5 = 102.0"},
		{"percentage number=100 percent=15", "Result: 15% of 100 = 15.0"},
		{"divide 1 0", "Error [DivisionByZero]"},
		{"sqrt -4", "Error [InvalidDomain]"},
		{"add 10 five", "Error [InvalidArgumentType]"},
		{"subtract 1", "Error [MissingArgument]"},
		{"modulo 1 2", "Error [UnknownOperation]"},
		{"sqrt 1 2", "sqrt takes 1 argument(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, out := newTestREPL()
			r.Execute(tt.line)
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Execute(%q) output = %q, want it to contain %q", tt.line, out.String(), tt.want)
			}
		})
	}
}

func TestExecuteBlankLine(t *testing.T) {
	r, out := newTestREPL()
	r.Execute("   ")
	if out.Len() != 0 {
		t.Errorf("expected no output for blank line, got %q", out.String())
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"/help", "Built-in Commands"},
		{"/tools", "percentage(number, percent)"},
		{"/audit", "Audit log is disabled"},
		{"/unknown", "Unknown command: /unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			r, out := newTestREPL()
			r.Execute(tt.cmd)
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("%s output = %q, want it to contain %q", tt.cmd, out.String(), tt.want)
			}
			if r.exiting {
				t.Errorf("%s should not exit", tt.cmd)
			}
		})
	}
}

func TestExitCommand(t *testing.T) {
	for _, cmd := range []string{"/exit", "/quit", "/q", "/EXIT"} {
		r, _ := newTestREPL()
		r.Execute(cmd)
		if !r.exiting {
			t.Errorf("%s should mark the REPL as exiting", cmd)
		}
	}
}

func TestAuditRecording(t *testing.T) {
	store, err := audit.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	r, out := newTestREPL(WithAuditStore(store))
	r.Execute("add 1 2")
	r.Execute("divide 1 0")

	entries, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Operation != "divide" || entries[0].Kind != string(dispatch.DivisionByZero) {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].Transport != audit.TransportCLI {
		t.Errorf("Transport = %q, want %q", entries[1].Transport, audit.TransportCLI)
	}

	out.Reset()
	r.Execute("/audit 1")
	if !strings.Contains(out.String(), "[DivisionByZero]") {
		t.Errorf("/audit output = %q", out.String())
	}
	if strings.Contains(out.String(), "Result: 1 + 2 = 3") {
		t.Errorf("/audit 1 should show a single entry, got %q", out.String())
	}

	out.Reset()
	r.Execute("/audit zero")
	if !strings.Contains(out.String(), "Usage: /audit [limit]") {
		t.Errorf("expected usage hint, got %q", out.String())
	}
}

func TestComplete(t *testing.T) {
	r, _ := newTestREPL()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"command prefix", "/e", []string{"/exit"}},
		{"operation prefix", "s", []string{"subtract", "sqrt"}},
		{"parameter names", "power ", []string{"base=", "exponent="}},
		{"parameter prefix", "power e", []string{"exponent="}},
		{"unknown operation", "modulo ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Complete(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Complete(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i, s := range got {
				if s.Text != tt.want[i] {
					t.Errorf("Complete(%q)[%d] = %q, want %q", tt.text, i, s.Text, tt.want[i])
				}
			}
		})
	}
}

func TestFormatEntry(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

	ok := FormatEntry(&audit.Entry{
		Transport: audit.TransportHTTP,
		Operation: "add",
		Status:    dispatch.StatusOK,
		Arguments: `{"a":1,"b":2}`,
		Message:   "Result: 1 + 2 = 3",
		CreatedAt: created,
	})
	if !strings.HasPrefix(ok, "2025-01-02 03:04:05") || !strings.HasSuffix(ok, "Result: 1 + 2 = 3") {
		t.Errorf("unexpected success line: %q", ok)
	}

	failed := FormatEntry(&audit.Entry{
		Transport: audit.TransportMCP,
		Operation: "divide",
		Status:    dispatch.StatusError,
		Kind:      "DivisionByZero",
		Message:   "Cannot divide by zero",
		CreatedAt: created,
	})
	if !strings.Contains(failed, "[DivisionByZero] Cannot divide by zero") {
		t.Errorf("unexpected failure line: %q", failed)
	}
}

func TestParseCallEmpty(t *testing.T) {
	if _, err := ParseCall(tools.NewDefaultRegistry(), nil); err == nil {
		t.Error("expected error for empty call")
	}
}

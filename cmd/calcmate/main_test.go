package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/config"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/tools"
)

func newTestApp(store audit.Store) *app {
	return &app{
		cfg:        config.DefaultConfig(),
		dispatcher: dispatch.New(tools.NewDefaultRegistry()),
		store:      store,
	}
}

func TestLogConfigInfo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MCP.Enabled = true
	cfg.Server.RateLimit.RequestsPerSecond = 5

	// Should not panic
	logConfigInfo(cfg)
}

func TestLogConfigInfo_AuditDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audit.Enabled = false

	// Should not panic
	logConfigInfo(cfg)
}

func TestRunCall(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		rawJSON string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "positional",
			args: []string{"add", "10", "5"},
			want: map[string]any{"status": "ok", "value": 15.0, "text": "Result: 10 + 5 = 15"},
		},
		{
			name:    "json arguments",
			args:    []string{"divide"},
			rawJSON: `{"a": 1, "b": 4}`,
			want:    map[string]any{"status": "ok", "value": 0.25, "text": "Result: 1 / 4 = 0.25"},
		},
		{
			name:    "named argument wins over json",
			args:    []string{"subtract", "b=1"},
			rawJSON: `{"a": 10, "b": 5}`,
			want:    map[string]any{"status": "ok", "value": 9.0, "text": "Result: 10 - 1 = 9"},
		},
		{
			name:    "domain failure",
			args:    []string{"sqrt", "-9"},
			want:    map[string]any{"status": "error", "kind": "InvalidDomain"},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			args:    []string{"modulo"},
			want:    map[string]any{"status": "error", "kind": "UnknownOperation"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runCall(&out, newTestApp(nil), tt.args, tt.rawJSON)
			if tt.wantErr != errors.Is(err, errInvocationFailed) {
				t.Fatalf("runCall error = %v, wantErr %v", err, tt.wantErr)
			}

			var got map[string]any
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out.String())
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestRunCall_BadInput(t *testing.T) {
	var out bytes.Buffer
	if err := runCall(&out, newTestApp(nil), []string{"add"}, `{"a": `); err == nil || errors.Is(err, errInvocationFailed) {
		t.Errorf("expected a JSON error, got %v", err)
	}
	if err := runCall(&out, newTestApp(nil), []string{"sqrt", "1", "2"}, ""); err == nil {
		t.Error("expected an argument count error")
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestRunCall_RecordsAudit(t *testing.T) {
	store, err := audit.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	var out bytes.Buffer
	if err := runCall(&out, newTestApp(store), []string{"power", "2", "8"}, ""); err != nil {
		t.Fatalf("runCall failed: %v", err)
	}

	entries, err := store.Recent(5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Operation != "power" || entries[0].Transport != audit.TransportCLI {
		t.Errorf("unexpected audit entries: %+v", entries)
	}

	out.Reset()
	if err := printAudit(&out, store, 5, false); err != nil {
		t.Fatalf("printAudit failed: %v", err)
	}
	if !strings.Contains(out.String(), "Result: 2 ^ 8 = 256") {
		t.Errorf("unexpected audit output: %q", out.String())
	}

	out.Reset()
	if err := printAudit(&out, store, 5, true); err != nil {
		t.Fatalf("printAudit summary failed: %v", err)
	}
	if !strings.Contains(out.String(), "power") || !strings.Contains(out.String(), "OPERATION") {
		t.Errorf("unexpected summary output: %q", out.String())
	}
}

func TestToolsCommand(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"discovery", `"name": "percentage"`, false},
		{"functions", `"type": "function"`, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"tools", "--format", tt.format})

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output does not contain %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if got := out.String(); got != "CalcMate v"+version+"\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestCallCommand_NegativeOperands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvAuditDB, filepath.Join(dir, "audit.db"))

	tests := []struct {
		name    string
		args    []string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "negative subtrahend",
			args: []string{"call", "subtract", "10", "-3"},
			want: map[string]any{"status": "ok", "value": 13.0, "text": "Result: 10 - -3 = 13"},
		},
		{
			name:    "negative root",
			args:    []string{"call", "sqrt", "-9"},
			want:    map[string]any{"status": "error", "kind": "InvalidDomain"},
			wantErr: true,
		},
		{
			name: "json flag before operation",
			args: []string{"call", "--json", `{"a": -1, "b": 4}`, "divide"},
			want: map[string]any{"status": "ok", "value": -0.25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs(append([]string{"--config-dir", dir}, tt.args...))

			err := cmd.Execute()
			if tt.wantErr != errors.Is(err, errInvocationFailed) {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}

			var got map[string]any
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out.String())
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

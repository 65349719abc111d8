package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/tools"
)

type memStore struct {
	audit.NopStore
	entries []*audit.Entry
	err     error
}

func (m *memStore) Record(e *audit.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func newBridge(opts ...Option) *Bridge {
	return New(dispatch.New(tools.NewDefaultRegistry()), opts...)
}

func callTool(t *testing.T, b *Bridge, name string, args map[string]any) string {
	t.Helper()
	req := &mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := b.Handler(name)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return resultText(t, res)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
		return ""
	}
}

func TestHandlerSuccess(t *testing.T) {
	b := newBridge()

	tests := []struct {
		name string
		op   string
		args map[string]any
		want string
	}{
		{"power", "power", map[string]any{"base": 2, "exponent": 8}, "Result: 2 ^ 8 = 256"},
		{"add floats from JSON", "add", map[string]any{"a": float64(10), "b": float64(5)}, "Result: 10 + 5 = 15"},
		{"sqrt", "sqrt", map[string]any{"number": 16}, "Result: sqrt(16) = 4.0"},
		{"extra args ignored", "subtract", map[string]any{"a": 10, "b": 4, "c": 1}, "Result: 10 - 4 = 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, callTool(t, b, tt.op, tt.args))
		})
	}
}

func TestHandlerFailure(t *testing.T) {
	b := newBridge()

	tests := []struct {
		name string
		op   string
		args map[string]any
		kind dispatch.ErrorKind
	}{
		{"division by zero", "divide", map[string]any{"a": 1, "b": 0}, dispatch.DivisionByZero},
		{"negative root", "sqrt", map[string]any{"number": -4}, dispatch.InvalidDomain},
		{"missing argument", "add", map[string]any{"a": 1}, dispatch.MissingArgument},
		{"wrong type", "add", map[string]any{"a": "five", "b": 1}, dispatch.InvalidArgumentType},
		{"unknown tool", "modulo", map[string]any{"a": 1, "b": 2}, dispatch.UnknownOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := callTool(t, b, tt.op, tt.args)
			assert.Contains(t, text, "Error ["+string(tt.kind)+"]")
		})
	}
}

func TestHandlerNilRequest(t *testing.T) {
	b := newBridge()
	res, err := b.Handler("add")(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Error [MissingArgument]")
}

func TestHandlerRecordsAudit(t *testing.T) {
	store := &memStore{}
	b := newBridge(WithAuditStore(store))

	callTool(t, b, "multiply", map[string]any{"a": 3, "b": 4})
	callTool(t, b, "divide", map[string]any{"a": 3, "b": 0})

	require.Len(t, store.entries, 2)
	assert.Equal(t, audit.TransportMCP, store.entries[0].Transport)
	assert.Equal(t, "multiply", store.entries[0].Operation)
	assert.Equal(t, dispatch.StatusOK, store.entries[0].Status)
	assert.Equal(t, "tools/call", store.entries[0].Endpoint)
	assert.Equal(t, dispatch.StatusError, store.entries[1].Status)
	assert.Equal(t, string(dispatch.DivisionByZero), store.entries[1].Kind)
}

func TestHandlerAuditFailureIgnored(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	b := newBridge(WithAuditStore(store))

	assert.Equal(t, "Result: 3 * 4 = 12", callTool(t, b, "multiply", map[string]any{"a": 3, "b": 4}))
}

type registeredTool struct {
	tool    *mcp.Tool
	handler toolHandler
}

func collectTools(b *Bridge) []registeredTool {
	var got []registeredTool
	b.registerTools(func(tool *mcp.Tool, handler toolHandler) {
		got = append(got, registeredTool{tool: tool, handler: handler})
	})
	return got
}

func toolJSON(t *testing.T, tool *mcp.Tool) string {
	t.Helper()
	data, err := json.Marshal(tool)
	require.NoError(t, err)
	return string(data)
}

func TestRegisterToolsDefaultRegistry(t *testing.T) {
	got := collectTools(newBridge())
	require.Len(t, got, 7)

	names := make([]string, len(got))
	for i, r := range got {
		names[i] = r.tool.Name
	}
	assert.Equal(t, tools.NewDefaultRegistry().Names(), names)

	power := toolJSON(t, got[4].tool)
	assert.Contains(t, power, `"base"`)
	assert.Contains(t, power, `"exponent"`)
	assert.Contains(t, power, "Base number")

	res, err := got[4].handler(context.Background(), &mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Error [MissingArgument]")
}

func TestRegisterToolsAnyArity(t *testing.T) {
	param := func(name string) tools.ParameterDef {
		return tools.ParameterDef{Name: name, Type: "number", Description: name + " value", Required: true}
	}
	sum3 := tools.OperationSpec{
		Name:        "sum3",
		Description: "Add three numbers",
		Parameters:  []tools.ParameterDef{param("x"), param("y"), param("z")},
		Compute: func(args tools.Args) (float64, error) {
			return args.Value("x") + args.Value("y") + args.Value("z"), nil
		},
		Format: func(args tools.Args, result float64) string {
			return "Result: " + tools.FormatNumber(result, args.Integral("x", "y", "z"))
		},
	}
	pi := tools.OperationSpec{
		Name:        "pi",
		Description: "The constant pi",
		Compute:     func(tools.Args) (float64, error) { return 3.5, nil },
		Format:      func(_ tools.Args, result float64) string { return "Result: " + tools.FormatNumber(result, false) },
	}
	registry, err := tools.NewRegistry(sum3, pi)
	require.NoError(t, err)

	var got []registeredTool
	require.NotPanics(t, func() {
		got = collectTools(New(dispatch.New(registry)))
	})
	require.Len(t, got, 2)

	schema := toolJSON(t, got[0].tool)
	for _, name := range []string{`"x"`, `"y"`, `"z"`} {
		assert.Contains(t, schema, name)
	}
	assert.Equal(t, "pi", got[1].tool.Name)

	req := &mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"x": 1, "y": 2, "z": 3}
	res, err := got[0].handler(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Result: 6", resultText(t, res))

	res, err = got[1].handler(context.Background(), &mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Result: 3.5", resultText(t, res))
}

func TestLoggerWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, logger.Init(logger.Config{LogDir: dir, Level: logger.DEBUG}))

	var l mcp.Logger = Logger{}
	l.Infof("session %s started", "s-1")
	l.Warn("slow ", "client")
	l.Debugf("payload %d bytes", 42)
	l.Error("transport closed")

	data, err := os.ReadFile(filepath.Join(dir, logger.LogFileName))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "session s-1 started")
	assert.Contains(t, content, "slow client")
	assert.Contains(t, content, "payload 42 bytes")
	assert.Contains(t, content, "transport closed")
}

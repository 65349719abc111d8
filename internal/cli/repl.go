// Package cli implements the interactive calculator shell.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/tools"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

var commands = []prompt.Suggest{
	{Text: "/help", Description: "Show this help message"},
	{Text: "/tools", Description: "List available operations"},
	{Text: "/audit", Description: "Show recent invocations"},
	{Text: "/exit", Description: "Exit program"},
}

// REPL interactive shell over a dispatcher
type REPL struct {
	dispatcher *dispatch.Dispatcher
	store      audit.Store
	out        io.Writer
	version    string
	exiting    bool
}

// Option configures the REPL instance.
type Option func(*REPL)

// WithAuditStore records every invocation in store and enables /audit.
func WithAuditStore(store audit.Store) Option {
	return func(r *REPL) { r.store = store }
}

// WithOutput sets where results are written (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(r *REPL) { r.out = w }
}

// WithVersion sets the version shown in the banner.
func WithVersion(version string) Option {
	return func(r *REPL) { r.version = version }
}

// New creates a REPL over dispatcher.
func New(dispatcher *dispatch.Dispatcher, opts ...Option) *REPL {
	r := &REPL{dispatcher: dispatcher, out: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the prompt loop; it returns after /exit or Ctrl+D.
func (r *REPL) Run() error {
	r.printWelcome()

	p := prompt.New(
		r.Execute,
		func(d prompt.Document) []prompt.Suggest { return r.Complete(d.TextBeforeCursor()) },
		prompt.OptionPrefix("calc> "),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionTitle("calcmate"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && r.exiting
		}),
	)
	p.Run()

	if !r.exiting {
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", colorCyan, colorReset)
	}
	return nil
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "\n%scalcmate v%s%s - calculator tools\n", colorCyan, r.version, colorReset)
	fmt.Fprintf(r.out, "%sType /help for help, /exit to quit%s\n\n", colorGray, colorReset)
}

// Execute handles one input line: a built-in command or an operation call
func (r *REPL) Execute(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "/") {
		r.handleCommand(input)
		return
	}

	req, err := r.parseLine(input)
	if err != nil {
		fmt.Fprintf(r.out, "%s%v%s\n", colorYellow, err, colorReset)
		return
	}

	start := time.Now()
	res := r.dispatcher.Invoke(req)
	r.record(req, res, time.Since(start))

	if res.OK() {
		fmt.Fprintf(r.out, "%s%s%s\n", colorGreen, res.Text, colorReset)
	} else {
		fmt.Fprintf(r.out, "%s%s%s\n", colorRed, res.String(), colorReset)
	}
}

func (r *REPL) record(req dispatch.Request, res dispatch.Result, elapsed time.Duration) {
	if r.store == nil {
		return
	}
	if err := r.store.Record(audit.NewEntry(audit.TransportCLI, req, res, elapsed)); err != nil {
		logger.Warn("Failed to record audit entry for %s: %v", req.OperationName, err)
	}
}

func (r *REPL) parseLine(line string) (dispatch.Request, error) {
	return ParseCall(r.dispatcher.Registry(), strings.Fields(line))
}

// ParseCall turns ["add", "10", "5"] or ["add", "a=10", "b=5"] into a request.
// Positional values fill the parameters not yet named, in declaration order.
// Values stay strings; the dispatcher decides whether they are numbers.
func ParseCall(registry *tools.Registry, fields []string) (dispatch.Request, error) {
	if len(fields) == 0 {
		return dispatch.Request{}, errors.New("no operation given")
	}
	name := fields[0]
	args := make(map[string]any, len(fields)-1)

	spec, known := registry.Lookup(name)
	next := 0
	for _, field := range fields[1:] {
		if key, value, ok := strings.Cut(field, "="); ok {
			if key == "" {
				return dispatch.Request{}, fmt.Errorf("argument %q has no name", field)
			}
			args[key] = value
			continue
		}

		if !known {
			return dispatch.NewRequest(name, args), nil
		}
		for next < len(spec.Parameters) {
			if _, taken := args[spec.Parameters[next].Name]; !taken {
				break
			}
			next++
		}
		if next >= len(spec.Parameters) {
			return dispatch.Request{}, fmt.Errorf("%s takes %d argument(s)", name, len(spec.Parameters))
		}
		args[spec.Parameters[next].Name] = field
		next++
	}

	return dispatch.NewRequest(name, args), nil
}

// Complete suggests commands, operation names and parameter names for the text before the cursor
func (r *REPL) Complete(text string) []prompt.Suggest {
	fields := strings.Fields(text)
	word := ""
	if len(fields) > 0 && !strings.HasSuffix(text, " ") {
		word = fields[len(fields)-1]
		fields = fields[:len(fields)-1]
	}

	if len(fields) == 0 {
		if strings.HasPrefix(word, "/") {
			return prompt.FilterHasPrefix(commands, word, true)
		}
		if word == "" {
			return nil
		}
		var suggestions []prompt.Suggest
		for _, spec := range r.dispatcher.Registry().List() {
			suggestions = append(suggestions, prompt.Suggest{Text: spec.Name, Description: spec.Description})
		}
		return prompt.FilterHasPrefix(suggestions, word, true)
	}

	spec, ok := r.dispatcher.Registry().Lookup(fields[0])
	if !ok {
		return nil
	}
	var suggestions []prompt.Suggest
	for _, p := range spec.Parameters {
		suggestions = append(suggestions, prompt.Suggest{Text: p.Name + "=", Description: p.Description})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

// handleCommand handles built-in commands
func (r *REPL) handleCommand(cmd string) {
	parts := strings.Fields(cmd)
	switch strings.ToLower(parts[0]) {
	case "/help":
		r.printHelp()

	case "/tools":
		r.printTools()

	case "/audit":
		r.printAudit(parts[1:])

	case "/exit", "/quit", "/q":
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", colorCyan, colorReset)
		r.exiting = true

	default:
		fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", colorYellow, cmd, colorReset)
		fmt.Fprintln(r.out, "Type /help for available commands")
	}
}

func (r *REPL) printTools() {
	for _, spec := range r.dispatcher.Registry().List() {
		params := make([]string, 0, len(spec.Parameters))
		for _, p := range spec.Parameters {
			params = append(params, p.Name)
		}
		fmt.Fprintf(r.out, "  %-11s %s%s%s\n", spec.Name+"("+strings.Join(params, ", ")+")", colorGray, spec.Description, colorReset)
	}
}

func (r *REPL) printAudit(args []string) {
	if r.store == nil {
		fmt.Fprintf(r.out, "%sAudit log is disabled%s\n", colorYellow, colorReset)
		return
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(r.out, "%sUsage: /audit [limit]%s\n", colorYellow, colorReset)
			return
		}
		limit = n
	}

	entries, err := r.store.Recent(limit)
	if err != nil {
		fmt.Fprintf(r.out, "%sFailed to read audit log: %v%s\n", colorRed, err, colorReset)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No invocations recorded yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintln(r.out, FormatEntry(e))
	}
}

// FormatEntry renders an audit entry on one line
func FormatEntry(e *audit.Entry) string {
	outcome := e.Message
	if e.Status == dispatch.StatusError {
		outcome = fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s  %-4s %-10s %s %s",
		e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Transport, e.Operation, e.Arguments, outcome)
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "\n%sBuilt-in Commands:%s\n", colorYellow, colorReset)
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %-14s - %s\n", c.Text, c.Description)
	}

	fmt.Fprintf(r.out, "\n%sOperations:%s %s\n", colorYellow, colorReset, strings.Join(r.dispatcher.Registry().Names(), ", "))

	fmt.Fprintf(r.out, "\n%sExamples:%s\n", colorYellow, colorReset)
	fmt.Fprintln(r.out, "  add 10 5")
	fmt.Fprintln(r.out, "  power base=2 exponent=10")
	fmt.Fprintln(r.out, "  percentage number=200 percent=15")
	fmt.Fprintln(r.out)
}

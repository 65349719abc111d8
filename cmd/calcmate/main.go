package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/cli"
	"github.com/hession/calcmate/internal/config"
	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/mcpserver"
	"github.com/hession/calcmate/internal/server"
	"github.com/hession/calcmate/internal/tools"
)

var (
	version = "0.1.0"
)

// errInvocationFailed makes the process exit with status 1 without printing anything further
var errInvocationFailed = errors.New("invocation failed")

func main() {
	rootCmd := newRootCmd()
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		if !errors.Is(err, errInvocationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir string
		cfg       *config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "calcmate",
		Short: "CalcMate - calculator tools for AI agents",
		Long: `CalcMate exposes seven calculator operations as tools an AI agent can call.

Operations: add, subtract, multiply, divide, power, sqrt, percentage.

It can:
  • Serve the operations over a JSON HTTP API
  • Serve them as MCP tools (streamable HTTP or stdio)
  • Run one-off calls or an interactive shell
  • Keep an audit log of every invocation`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "tools" {
				return nil
			}
			if configDir != "" {
				config.SetConfigDir(configDir)
			}

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded

			logCfg := cfg.LoggerConfig()
			if cmd.Name() == "mcp" {
				// stdout carries the protocol
				logCfg.ConsoleOut = false
			}
			if err := logger.Init(logCfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logConfigInfo(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	get := func() *config.Config { return cfg }
	rootCmd.AddCommand(
		newServeCmd(get),
		newMCPCmd(get),
		newREPLCmd(get),
		newCallCmd(get),
		newToolsCmd(),
		newAuditCmd(get),
		newConfigCmd(get),
		newVersionCmd(),
	)
	return rootCmd
}

// logConfigInfo logs configuration information at startup
func logConfigInfo(cfg *config.Config) {
	logger.Info("CalcMate v%s starting", version)
	logger.Info("HTTP address: %s", cfg.Server.Addr())
	if cfg.MCP.Enabled {
		logger.Info("MCP address: %s", cfg.MCP.Address)
	}
	if cfg.Audit.Enabled {
		logger.Info("Audit log: %s", cfg.Audit.DBPath)
	} else {
		logger.Info("Audit log: disabled")
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 {
		logger.Info("Rate limit: %.2f req/s, burst %d", cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}
	logger.Debug("Telemetry enabled: %v", cfg.Telemetry.Enabled)
}

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var (
		host      string
		port      int
		enableMCP bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operations over HTTP (and MCP when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if cmd.Flags().Changed("host") {
				c.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				c.Server.Port = port
			}
			if enableMCP {
				c.MCP.Enabled = true
			}
			if err := c.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()

			if c.MCP.Enabled {
				bridge := mcpserver.New(a.dispatcher, mcpserver.WithAuditStore(a.store))
				go func() {
					if err := bridge.ServeHTTP(c.MCP); err != nil {
						logger.Error("MCP server stopped: %v", err)
						stop()
					}
				}()
			}

			opts := []server.Option{
				server.WithVersion(version),
				server.WithCORSOrigins(c.Server.CORSAllowedOrigins),
				server.WithRateLimit(c.Server.RateLimit.RequestsPerSecond, c.Server.RateLimit.Burst),
				server.WithRateLimitClients(c.Server.RateLimit.MaxClients),
				server.WithTrustedProxies(c.Server.RateLimit.TrustedProxies),
			}
			if a.store != nil {
				opts = append(opts, server.WithAuditStore(a.store, c.Audit.DefaultLimit))
			}

			fmt.Printf("CalcMate v%s listening on %s\n", version, c.Server.Addr())
			return server.New(a.dispatcher, opts...).Run(ctx, c.Server)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "override server.host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	cmd.Flags().BoolVar(&enableMCP, "mcp", false, "also serve MCP over streamable HTTP")
	return cmd
}

func newMCPCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operations as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			a, err := newApp(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer a.Close()

			bridge := mcpserver.New(a.dispatcher, mcpserver.WithAuditStore(a.store))
			return bridge.ServeStdio(c.MCP.ServerName, c.MCP.ServerVersion)
		},
	}
}

func newREPLCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive calculator shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), cfg())
		},
	}
}

func runREPL(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []cli.Option{cli.WithVersion(version)}
	if a.store != nil {
		opts = append(opts, cli.WithAuditStore(a.store))
	}
	return cli.New(a.dispatcher, opts...).Run()
}

func newCallCmd(cfg func() *config.Config) *cobra.Command {
	var rawJSON string

	cmd := &cobra.Command{
		Use:   "call [--json object] <operation> [value | name=value ...]",
		Short: "Invoke one operation and print the result as JSON",
		Example: `  calcmate call add 10 5
  calcmate call power base=2 exponent=10
  calcmate call subtract 10 -3
  calcmate call --json '{"a": 1, "b": 4}' divide`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			return runCall(cmd.OutOrStdout(), a, args, rawJSON)
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "arguments as a JSON object; name=value arguments take precedence")
	// everything after the operation is an operand, so "-3" is a value and not a flag
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// runCall invokes one operation and writes the result JSON to w.
// It returns errInvocationFailed when the result is a failure.
func runCall(w io.Writer, a *app, args []string, rawJSON string) error {
	req, err := cli.ParseCall(a.dispatcher.Registry(), args)
	if err != nil {
		return err
	}

	if rawJSON != "" {
		extra, err := decodeArgs(rawJSON)
		if err != nil {
			return err
		}
		for k, v := range extra {
			if _, ok := req.Arguments[k]; !ok {
				req.Arguments[k] = v
			}
		}
	}

	start := time.Now()
	res := a.dispatcher.Invoke(req)
	if a.store != nil {
		if err := a.store.Record(audit.NewEntry(audit.TransportCLI, req, res, time.Now().Sub(start))); err != nil {
			logger.Warn("Failed to record audit entry for %s: %v", req.OperationName, err)
		}
	}

	if err := printJSON(w, res); err != nil {
		return err
	}
	if !res.OK() {
		return errInvocationFailed
	}
	return nil
}

func decodeArgs(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("--json must be a JSON object: %w", err)
	}
	return args, nil
}

func newToolsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the operation catalogue as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewDefaultRegistry()
			switch format {
			case "discovery":
				return printJSON(cmd.OutOrStdout(), registry.Discovery())
			case "functions":
				return printJSON(cmd.OutOrStdout(), registry.GetSchemas())
			default:
				return fmt.Errorf("unknown format %q (use discovery or functions)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "discovery", "discovery or functions")
	return cmd
}

func newAuditCmd(cfg func() *config.Config) *cobra.Command {
	var (
		limit   int
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent invocations from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if !c.Audit.Enabled {
				return errors.New("audit log is disabled (audit.enabled: false)")
			}
			store, err := audit.NewSQLiteStore(c.Audit.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open audit log: %w", err)
			}
			defer store.Close()

			if limit <= 0 {
				limit = c.Audit.DefaultLimit
			}
			return printAudit(cmd.OutOrStdout(), store, limit, summary)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (default audit.default_limit)")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-operation totals instead of entries")
	return cmd
}

func printAudit(w io.Writer, store audit.Store, limit int, summary bool) error {
	if summary {
		summaries, err := store.Summary()
		if err != nil {
			return fmt.Errorf("failed to summarize audit log: %w", err)
		}
		fmt.Fprintf(w, "%-12s %8s %8s %8s %12s\n", "OPERATION", "TOTAL", "OK", "FAILED", "AVG MS")
		for _, s := range summaries {
			fmt.Fprintf(w, "%-12s %8d %8d %8d %12.3f\n", s.Operation, s.Total, s.Succeeded, s.Failed, s.AvgDurationMS)
		}
		return nil
	}

	entries, err := store.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No invocations recorded yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(w, cli.FormatEntry(e))
	}
	return nil
}

func newConfigCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cfg().String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CalcMate v%s\n", version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

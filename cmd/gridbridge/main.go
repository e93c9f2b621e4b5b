package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sameehj/gridbridge/pkg/config"
	"github.com/sameehj/gridbridge/pkg/env"
	"github.com/sameehj/gridbridge/pkg/gateway"
	"github.com/sameehj/gridbridge/pkg/library"
	"github.com/sameehj/gridbridge/pkg/mcp"
	"github.com/sameehj/gridbridge/pkg/policy"
	"github.com/sameehj/gridbridge/pkg/runtime"
	"github.com/sameehj/gridbridge/pkg/runtime/libwatcher"
	"github.com/sameehj/gridbridge/pkg/runtime/logging"
	"github.com/sameehj/gridbridge/pkg/runtime/python"
	"github.com/sameehj/gridbridge/pkg/system"
	"github.com/sameehj/gridbridge/pkg/transform"
	"github.com/sameehj/gridbridge/pkg/version"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gridbridge",
		Short:         "Run Starlark transforms over spreadsheet sheets",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.LoadFromDir(".")
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gridbridge/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(scriptsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// app holds the components every command builds from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *library.Registry
	starlark *runtime.StarlarkEngine
	executor *runtime.Executor
	service  *transform.Service
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	registry := library.NewRegistry(cfg.ScriptPaths())
	if err := registry.Load(); err != nil {
		return nil, err
	}

	star := runtime.NewStarlarkEngine(registry)
	py := python.New(python.Config{
		InstanceName: cfg.Engines.Python.Instance,
		PythonPaths:  cfg.Engines.Python.PythonPaths,
		Logger:       logger,
	})
	executor, err := runtime.NewExecutor(runtime.Config{
		Engines:        []runtime.Engine{star, py},
		DefaultEngine:  cfg.Engines.Default,
		DefaultTimeout: cfg.ExecTimeout(),
		MaxTimeout:     cfg.ExecMaxTimeout(),
		MaxSteps:       cfg.Exec.MaxSteps,
		MaxOutput:      cfg.Exec.MaxOutput,
		Policy:         &policy.Policy{Allow: cfg.Engines.Allow, Block: cfg.Engines.Block},
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		starlark: star,
		executor: executor,
		service:  transform.NewService(executor, logger),
	}, nil
}

// watchScripts keeps the library and the compiled module cache current.
func (a *app) watchScripts(ctx context.Context) {
	if !a.cfg.Scripts.Watch || len(a.registry.Paths()) == 0 {
		return
	}
	watcher := libwatcher.New(a.registry, a.registry.Paths(), a.starlark.Forget)
	watcher.SetLogger(a.logger)
	go func() {
		if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("script_watcher_stopped", "error", err)
		}
	}()
}

func serveCmd() *cobra.Command {
	var addr string
	var maxInFlight int
	var withMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Gateway.Address
			}
			if !cmd.Flags().Changed("max-in-flight") {
				maxInFlight = a.cfg.Gateway.MaxInFlight
			}

			opts := gateway.Options{
				Addr:            addr,
				MaxInFlight:     maxInFlight,
				MaxBodyBytes:    a.cfg.Gateway.MaxBodyBytes,
				AllowedOrigins:  a.cfg.Gateway.AllowedOrigins,
				Authorizer:      gateway.AllowlistAuthorizer{Allowed: a.cfg.Gateway.AllowedAddrs},
				ShutdownTimeout: a.cfg.ShutdownTimeout(),
				Engines:         allowedEngines(a.executor),
			}
			if withMCP {
				mcpServer := mcp.NewServer(a.service, a.registry)
				mcpServer.SetLogger(a.logger)
				opts.MCP = mcpServer.HTTPHandler()
			}
			gw := gateway.NewServer(a.service, opts)
			gw.SetLogger(a.logger)

			ctx, stop := signalContext()
			defer stop()
			a.watchScripts(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "gridbridge listening on %s\n", gw.Addr())
			return gw.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "gateway listen address")
	cmd.Flags().IntVar(&maxInFlight, "max-in-flight", 0, "maximum concurrent transforms (0 = unlimited)")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "also serve MCP over HTTP at /mcp")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			a.watchScripts(ctx)

			server := mcp.NewServer(a.service, a.registry)
			server.SetLogger(a.logger)
			if err := server.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func scriptsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scripts", Short: "Script library management"}
	cmd.AddCommand(scriptsListCmd())
	cmd.AddCommand(scriptsShowCmd())
	cmd.AddCommand(scriptsCreateCmd())
	return cmd
}

func scriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List library scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range a.registry.List() {
				fmt.Fprintf(out, "%s\t%s\t%s\n", s.Name, s.Version, s.Description)
			}
			return nil
		},
	}
}

func scriptsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a library script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			script, ok := a.registry.Get(args[0])
			if !ok {
				return fmt.Errorf("script not found: %s", args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), script.Content)
			return nil
		},
	}
}

func scriptsCreateCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a library script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			script, err := a.registry.Create(args[0], content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s at %s\n", script.Name, script.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "script source")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show host, config and engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			profile, _ := system.Detect()
			out := cmd.OutOrStdout()
			configPath := cfgFile
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			fmt.Fprintf(out, "Version: %s\n", version.String())
			fmt.Fprintf(out, "Host: %s\n", profile)
			fmt.Fprintf(out, "Config: %s\n", configPath)
			fmt.Fprintf(out, "Gateway: %s (max in flight %d)\n", a.cfg.Gateway.Address, a.cfg.Gateway.MaxInFlight)
			fmt.Fprintf(out, "Default engine: %s\n", a.executor.DefaultEngine())
			engines := a.executor.Engines()
			for _, name := range a.executor.EngineNames() {
				status := "allowed"
				if !engines[name] {
					status = "disabled by policy"
				}
				fmt.Fprintf(out, "  %s: %s\n", name, status)
			}
			fmt.Fprintf(out, "Script paths: %v\n", a.registry.Paths())
			fmt.Fprintf(out, "Scripts loaded: %d\n", len(a.registry.List()))
			if profile.Python != "" {
				fmt.Fprintf(out, "System python: %s\n", profile.Python)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func allowedEngines(executor *runtime.Executor) []string {
	engines := executor.Engines()
	var out []string
	for _, name := range executor.EngineNames() {
		if engines[name] {
			out = append(out, name)
		}
	}
	return out
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --timeout: %w", err)
	}
	return d, nil
}

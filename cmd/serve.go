package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/autodebug/autodebug/pkg/ipc"
	"github.com/autodebug/autodebug/pkg/launcher"
	"github.com/autodebug/autodebug/pkg/lifecycle"
	"github.com/autodebug/autodebug/pkg/metrics"
	"github.com/autodebug/autodebug/pkg/terminal"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [-- command [args...]]",
	Short: "Run the IPC server until interrupted",
	Long: `Serve binds the IPC handle and writes every launch request it receives to
stdout as one JSON line. The handle path is printed to stderr.

When a command is given, it runs with AUTODEBUG_IPC_HANDLE set and the server
stops when the command exits. SIGHUP reloads the configuration.`,
	RunE: runServe,
}

// runServe executes the main server logic
func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := rootCfg

	if !cfg.IPC.Enabled {
		rootLog.Info("IPC server disabled by configuration")
		return nil
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	opts := ipc.OptionsFromConfig(cfg.IPC)
	opts.Launcher = launcher.NewJSONLines(cmd.OutOrStdout(), rootLog)
	opts.Reporter = ipc.ErrorReporterFunc(func(err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "autodebug: %v\n", err)
	})
	opts.Logger = rootLog
	opts.Metrics = collector

	srv, err := ipc.New(ctx, opts)
	if err != nil {
		rootLog.Error("IPC server unavailable", "error", err)
		return err
	}

	shutdown := lifecycle.NewShutdownManager(cfg.Shutdown.Timeout, rootLog)
	shutdown.AddHook("ipc_server", func(context.Context) error {
		return srv.Close()
	})

	env := terminal.NewManager(nil, cfg.IPC.Enabled, rootLog)
	env.AddProvider(srv)
	env.Refresh()

	reloader := config.NewReloader(cfgFile, cfg, rootLog.Slog())
	reloader.AddCallback(func(_ context.Context, c *config.Config) error {
		return rootLog.SetLevelString(c.Logging.Level)
	})
	reloader.AddCallback(env.OnConfigReload)
	reloader.Start()
	defer reloader.Stop()

	if collector != nil {
		stopMetrics := serveMetrics(cfg.Metrics, collector)
		shutdown.AddHook("metrics_server", stopMetrics)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), srv.HandlePath())
	rootLog.Info("Autodebug is running. Press Ctrl+C to stop.", "handle", srv.HandlePath())

	shutdown.Start()
	defer shutdown.Stop()

	childErr := make(chan error, 1)
	if len(args) > 0 {
		child := exec.CommandContext(ctx, args[0], args[1:]...)
		child.Env = env.Collection().Environ(os.Environ())
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr

		if err := child.Start(); err != nil {
			_ = shutdown.Shutdown(context.Background(), "child failed to start")
			return fmt.Errorf("failed to start %s: %w", args[0], err)
		}
		rootLog.Info("Child process started", "command", args[0], "pid", child.Process.Pid)

		go func() {
			err := child.Wait()
			childErr <- err
			if err := shutdown.Shutdown(context.Background(), "child process exited"); err != nil {
				rootLog.Debug("Shutdown after child exit", "error", err)
			}
		}()
	}

	<-shutdown.Done()

	select {
	case err := <-childErr:
		if err != nil {
			return fmt.Errorf("command %s: %w", args[0], err)
		}
	default:
	}
	return nil
}

// serveMetrics exposes the collector over HTTP and returns a hook that stops it
func serveMetrics(cfg config.MetricsConfig, collector *metrics.Collector) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, collector.Handler())

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		rootLog.Info("Metrics endpoint listening", "address", cfg.Address, "path", cfg.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLog.Error("Metrics server failed", "error", err)
		}
	}()

	return server.Shutdown
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

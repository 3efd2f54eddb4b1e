package cmd

import (
	"fmt"
	"os"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/autodebug/autodebug/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/autodebug/autodebug/cmd.Version=..."
var Version = "dev"

var (
	// CLI flags
	cfgFile     string
	logLevel    string
	logFormat   string
	logOutput   string
	contextFlag string

	// Global variables
	rootLog *logger.Logger
	rootCfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "autodebug",
	Short: "Autodebug - start debug sessions from any terminal",
	Long: `Autodebug runs a local IPC endpoint that processes started from an editor
terminal use to request a debug session. Clients find the endpoint through the
AUTODEBUG_IPC_HANDLE environment variable and write one JSON object per line.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if rootLog != nil {
			rootLog.Close()
		}
	},
}

// setup loads configuration and initializes the logger for every command
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rootCfg = cfg

	if err := initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// initLogger initializes the global logger based on CLI flags and config
func initLogger(cfg config.LoggingConfig) error {
	// Override with CLI flags if provided
	if logLevel != "" {
		cfg.Level = logLevel
	}
	if logFormat != "" {
		cfg.Format = logFormat
	}
	if logOutput != "" {
		cfg.Output = logOutput
	}

	log, err := logger.New(cfg)
	if err != nil {
		return err
	}

	rootLog = log
	logger.SetGlobal(log)
	return nil
}

// loadConfig loads the configuration and applies CLI overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if contextFlag != "" {
		cfg.IPC.Context = contextFlag
	}

	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if rootLog != nil {
			rootLog.Error("Command execution failed", "error", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path, .yaml or .toml (default: ~/.config/autodebug/config.yaml if present)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text, auto (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Handle flags
	rootCmd.PersistentFlags().StringVar(&contextFlag, "context", "",
		"Context string hashed into the handle path, usually the workspace directory")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "workspace",
		Short:         "Tabbed workspace server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newStoreCmd())
	return root
}

// flags are CLI overrides; only flags the user set replace environment values
type flags struct {
	port     string
	host     string
	dataDir  string
	logLevel string
	dev      bool
}

func (f *flags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.port, "port", "", "Server port (env PORT)")
	cmd.Flags().StringVar(&f.host, "host", "", "Listen host (env HOST)")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Data directory (env DATA_DIR)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (env LOG_LEVEL)")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "Development logging (env LOG_DEV)")
}

func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("data-dir") {
		cfg.Storage.DataDir = f.dataDir
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("dev") {
		cfg.Logging.Development = f.dev
	}
}

// setup loads configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, f *flags, extra func(*config.Config)) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	f.apply(cmd, cfg)
	if extra != nil {
		extra(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("Configuration loaded",
		zap.String("addr", cfg.Addr()),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Bool("dev", cfg.Logging.Development),
	)
	return cfg, logger, nil
}

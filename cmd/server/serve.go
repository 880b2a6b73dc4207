package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/server"
)

func newServeCmd() *cobra.Command {
	var f flags
	var remoteBackend, remoteURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workspace server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, &f, func(cfg *config.Config) {
				if cmd.Flags().Changed("remote") {
					cfg.Remote.Backend = remoteBackend
				}
				if cmd.Flags().Changed("remote-url") {
					cfg.Remote.URL = remoteURL
				}
			})
			if err != nil {
				return err
			}
			srv, err := server.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&remoteBackend, "remote", "", "Remote layout store: none, http or sqlite (env REMOTE_BACKEND)")
	cmd.Flags().StringVar(&remoteURL, "remote-url", "", "Remote layout store URL (env REMOTE_URL)")
	return cmd
}

func newStoreCmd() *cobra.Command {
	var f flags
	var dbPath string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Serve the shared remote layout store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, &f, func(cfg *config.Config) {
				if cmd.Flags().Changed("db") {
					cfg.Remote.DBPath = dbPath
				}
			})
			if err != nil {
				return err
			}
			srv, err := server.NewStoreServer(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return srv.Run(cmd.Context())
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (env REMOTE_DB_PATH)")
	return cmd
}

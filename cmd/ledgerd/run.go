package main

import (
	"os/signal"
	"syscall"

	"ledgerd/config"
	"ledgerd/internal/collector"
	"ledgerd/logger"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the broker terminal and run the ledger collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(configPath)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return collector.Run(ctx, loader, cfg, log)
		},
	}
}

package main

import (
	"fmt"
	"os"
	"time"

	"ledgerd/config"
	"ledgerd/internal/export"
	"ledgerd/pkg/storage/ledgerdb"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		fromStr string
		toStr   string
		account string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export {trades|balances}",
		Short: "Export the ledger as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseRange(fromStr, toStr)
			if err != nil {
				return err
			}

			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}

			store, err := ledgerdb.Initialize(cfg.Database, cfg.Log.Environment, false)
			if err != nil {
				return err
			}
			defer store.Close()

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			ctx := cmd.Context()
			switch args[0] {
			case "trades":
				trades, err := store.QueryTrades(ctx, from, to)
				if err != nil {
					return err
				}
				return export.WriteTrades(out, trades)
			case "balances":
				snaps, err := store.QueryBalances(ctx, account, from, to)
				if err != nil {
					return err
				}
				return export.WriteBalances(out, snaps)
			default:
				return fmt.Errorf("unknown export target %q", args[0])
			}
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start of range (YYYY-MM-DD or RFC 3339), inclusive")
	cmd.Flags().StringVar(&toStr, "to", "", "end of range, exclusive")
	cmd.Flags().StringVar(&account, "account", "", "restrict balances to one account")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = parseStamp(fromStr); err != nil {
			return from, to, fmt.Errorf("bad --from: %w", err)
		}
	}
	if toStr != "" {
		if to, err = parseStamp(toStr); err != nil {
			return from, to, fmt.Errorf("bad --to: %w", err)
		}
	}
	return from, to, nil
}

func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

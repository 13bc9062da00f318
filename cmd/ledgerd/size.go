package main

import (
	"context"
	"fmt"

	"ledgerd/config"
	"ledgerd/internal/sizer"
	"ledgerd/pkg/pricefeed"
	"ledgerd/pkg/storage/ledgerdb"

	"github.com/spf13/cobra"
)

func newSizeCmd() *cobra.Command {
	var (
		balance float64
		riskPct float64
		entry   float64
		stop    float64
		target  float64
		account string
		symbol  string
		lookup  bool
	)

	cmd := &cobra.Command{
		Use:   "size",
		Short: "Compute position size from balance, risk percent, entry and stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			// Default the balance from the ledger's latest snapshot
			if balance == 0 && account != "" {
				b, err := latestBalance(ctx, cfg, account)
				if err != nil {
					return err
				}
				balance = b
			}

			// A live quote overrides the entered entry price; a lookup
			// failure degrades to the entered price with a warning.
			if lookup && symbol != "" {
				feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Exchanges, cfg.PriceFeed.Timeout)
				if price, err := feed.LookupLastPrice(ctx, symbol); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: price lookup for %s failed (%v); using entered entry\n", symbol, err)
				} else {
					entry = price
					fmt.Fprintf(cmd.OutOrStdout(), "entry from live quote: %.2f\n", price)
				}
			}

			in := sizer.Input{
				Balance: balance,
				RiskPct: riskPct,
				Entry:   entry,
				Stop:    stop,
			}
			if cmd.Flags().Changed("target") {
				in.Target = &target
			}

			res, err := sizer.Size(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account risk:    $%s\n", res.RiskAmount.StringFixed(2))
			fmt.Fprintf(out, "risk per share:  $%s\n", res.PerShareRisk.StringFixed(2))
			fmt.Fprintf(out, "shares to buy:   %d\n", res.Shares)
			fmt.Fprintf(out, "position value:  $%s (%s%% of account)\n", res.PositionValue.StringFixed(2), res.AccountPct.StringFixed(2))
			if res.RewardRisk != nil {
				fmt.Fprintf(out, "reward/risk:     %s\n", res.RewardRisk.StringFixed(2))
				fmt.Fprintf(out, "potential:       $%s\n", res.Potential.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&balance, "balance", 0, "account balance (default: latest ledger snapshot for --account)")
	cmd.Flags().Float64Var(&riskPct, "risk", 1.0, "percent of balance to risk")
	cmd.Flags().Float64Var(&entry, "entry", 0, "entry price")
	cmd.Flags().Float64Var(&stop, "stop", 0, "stop price")
	cmd.Flags().Float64Var(&target, "target", 0, "target price (optional)")
	cmd.Flags().StringVar(&account, "account", "", "account id for the balance default")
	cmd.Flags().StringVar(&symbol, "symbol", "", "ticker for the live price lookup")
	cmd.Flags().BoolVar(&lookup, "lookup", false, "fetch the entry price from the live feed")
	return cmd
}

func latestBalance(ctx context.Context, cfg *config.Config, account string) (float64, error) {
	store, err := ledgerdb.Initialize(cfg.Database, cfg.Log.Environment, false)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	snap, err := store.LatestSnapshot(ctx, account)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, fmt.Errorf("no balance history for account %s; pass --balance", account)
	}
	return snap.Value, nil
}

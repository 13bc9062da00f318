// Package export renders ledger queries as tabular CSV. Read-only: it never
// mutates the ledger.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"ledgerd/internal/ledger"
)

var tradeHeader = []string{
	"executionId", "accountId", "symbol", "side",
	"quantity", "price", "timestamp", "currency",
}

var balanceHeader = []string{"accountId", "observedAt", "value", "currency"}

// WriteTrades streams trade rows to w in execution-time order (the order the
// query returns them in).
func WriteTrades(w io.Writer, trades []ledger.Trade) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(tradeHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.ExecID,
			t.AccountID,
			t.Symbol,
			string(t.Side),
			formatFloat(t.Quantity),
			formatFloat(t.Price),
			t.ExecutedAt.Format(time.RFC3339),
			t.Currency,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write trade %s: %w", t.ExecID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteBalances streams balance history rows to w.
func WriteBalances(w io.Writer, snaps []ledger.BalanceSnapshot) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(balanceHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range snaps {
		row := []string{
			s.AccountID,
			s.ObservedAt.Format(time.RFC3339),
			strconv.FormatFloat(s.Value, 'f', 2, 64),
			s.Currency,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write snapshot for %s: %w", s.AccountID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

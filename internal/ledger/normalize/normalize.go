// Package normalize converts raw gateway frames into canonical domain events.
// It is a pure transform: validation only, no side effects.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledgerd/internal/ledger"
	"ledgerd/pkg/ibgw"
)

// Reject reasons. Malformed executions are logged and dropped by the caller;
// irrelevant frames are discarded silently.
var (
	ErrMalformedExecution = errors.New("malformed execution")
	ErrIrrelevant         = errors.New("irrelevant event")
)

// Event is a normalized domain event ready for reconciliation.
type Event interface {
	isEvent()
}

type ExecutionEvent struct {
	Trade ledger.Trade
}

type AccountValueEvent struct {
	AccountID string
	Value     float64
	Currency  string
}

type CommissionEvent struct {
	ExecID      string
	Commission  float64
	RealizedPnL float64
}

type ManagedAccountsEvent struct {
	Accounts []string
}

func (ExecutionEvent) isEvent()       {}
func (AccountValueEvent) isEvent()    {}
func (CommissionEvent) isEvent()      {}
func (ManagedAccountsEvent) isEvent() {}

// The terminal stamps executions with its own format; newer gateways send RFC 3339.
var execTimeLayouts = []string{
	time.RFC3339,
	"20060102  15:04:05",
	"20060102 15:04:05",
}

// Normalize validates a raw gateway frame and maps it to a domain event.
// Frames the ledger does not track return ErrIrrelevant.
func Normalize(msg []byte) (Event, error) {
	// Extract the topic first for early filtering
	var env ibgw.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("%w: undecodable frame: %v", ErrIrrelevant, err)
	}

	switch env.Topic {
	case ibgw.TopicExecution:
		return normalizeExecution(env.Data)
	case ibgw.TopicAccountValue:
		return normalizeAccountValue(env.Data)
	case ibgw.TopicCommission:
		return normalizeCommission(env.Data)
	case ibgw.TopicManagedAccounts:
		return normalizeManagedAccounts(env.Data)
	default:
		// Subscription acks, heartbeats, unknown topics
		return nil, fmt.Errorf("%w: topic %q", ErrIrrelevant, env.Topic)
	}
}

func normalizeExecution(data json.RawMessage) (Event, error) {
	var p ibgw.ExecutionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExecution, err)
	}

	if p.ExecID == "" {
		return nil, fmt.Errorf("%w: missing execId", ErrMalformedExecution)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: missing symbol for exec %s", ErrMalformedExecution, p.ExecID)
	}
	if p.Shares <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity for exec %s", ErrMalformedExecution, p.ExecID)
	}
	if p.Price <= 0 {
		return nil, fmt.Errorf("%w: non-positive price for exec %s", ErrMalformedExecution, p.ExecID)
	}

	side, err := normalizeSide(p.Side)
	if err != nil {
		return nil, err
	}

	executedAt, err := parseExecTime(p.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q for exec %s", ErrMalformedExecution, p.Time, p.ExecID)
	}

	return ExecutionEvent{Trade: ledger.Trade{
		ExecID:     p.ExecID,
		OrderRef:   p.OrderRef,
		AccountID:  p.AcctNumber,
		Symbol:     p.Symbol,
		Side:       side,
		Quantity:   p.Shares,
		Price:      p.Price,
		Currency:   p.Currency,
		ExecutedAt: executedAt,
	}}, nil
}

func normalizeAccountValue(data json.RawMessage) (Event, error) {
	var p ibgw.AccountValuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIrrelevant, err)
	}

	// The ledger only tracks total account value; every other summary tag is noise.
	if p.Key != "NetLiquidation" {
		return nil, fmt.Errorf("%w: account key %q", ErrIrrelevant, p.Key)
	}
	if p.Account == "" {
		return nil, fmt.Errorf("%w: account value without account", ErrIrrelevant)
	}

	value, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable NetLiquidation %q for %s", ErrIrrelevant, p.Value, p.Account)
	}

	return AccountValueEvent{
		AccountID: p.Account,
		Value:     value,
		Currency:  p.Currency,
	}, nil
}

func normalizeCommission(data json.RawMessage) (Event, error) {
	var p ibgw.CommissionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExecution, err)
	}
	if p.ExecID == "" {
		return nil, fmt.Errorf("%w: commission report without execId", ErrMalformedExecution)
	}
	return CommissionEvent{
		ExecID:      p.ExecID,
		Commission:  p.Commission,
		RealizedPnL: p.RealizedPnL,
	}, nil
}

func normalizeManagedAccounts(data json.RawMessage) (Event, error) {
	var p ibgw.ManagedAccountsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIrrelevant, err)
	}

	var accounts []string
	for _, a := range p.Accounts {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: empty managed accounts list", ErrIrrelevant)
	}
	return ManagedAccountsEvent{Accounts: accounts}, nil
}

func normalizeSide(s string) (ledger.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BOT", "BUY":
		return ledger.SideBuy, nil
	case "SLD", "SELL":
		return ledger.SideSell, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrMalformedExecution, s)
	}
}

func parseExecTime(s string) (time.Time, error) {
	for _, layout := range execTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

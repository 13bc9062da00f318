package ledger

import "time"

// Side is the normalized direction of an execution.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one broker execution report. The broker-issued execution id is the
// identity: the ledger never holds two trades with the same ExecID.
type Trade struct {
	ExecID      string    `json:"execId"`
	OrderRef    string    `json:"orderRef"`
	AccountID   string    `json:"accountId"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Commission  float64   `json:"commission"`
	RealizedPnL float64   `json:"realizedPnl"`
	ExecutedAt  time.Time `json:"executedAt"` // broker-supplied; may arrive out of order
}

// Equal reports whether two trades carry identical content. Used to tell an
// idempotent re-delivery apart from a broker-side correction.
func (t Trade) Equal(o Trade) bool {
	return t.ExecID == o.ExecID &&
		t.OrderRef == o.OrderRef &&
		t.AccountID == o.AccountID &&
		t.Symbol == o.Symbol &&
		t.Side == o.Side &&
		t.Quantity == o.Quantity &&
		t.Price == o.Price &&
		t.Currency == o.Currency &&
		t.Commission == o.Commission &&
		t.RealizedPnL == o.RealizedPnL &&
		t.ExecutedAt.Equal(o.ExecutedAt)
}

// BalanceSnapshot is one observation of Net Liquidation value for an account.
type BalanceSnapshot struct {
	AccountID  string    `json:"accountId"`
	Value      float64   `json:"value"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observedAt"` // local wall-clock time of capture
}

// ConnState is the session state against the broker terminal.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

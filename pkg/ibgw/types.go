package ibgw

import "encoding/json"

// Envelope is the generic frame shape on the gateway stream. Data is decoded
// lazily because the payload varies per topic.
type Envelope struct {
	Topic string          `json:"topic"` // "execution", "accountValue", "commission", "managedAccounts"
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"` // gateway send time (milliseconds since epoch)
}

// ExecutionPayload mirrors the terminal's execution report fields.
type ExecutionPayload struct {
	ExecID     string  `json:"execId"`
	OrderRef   string  `json:"orderRef"`
	AcctNumber string  `json:"acctNumber"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "BOT"/"SLD" from the terminal, "BUY"/"SELL" from newer gateways
	Shares     float64 `json:"shares"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Time       string  `json:"time"` // broker-formatted timestamp
}

// AccountValuePayload is one tag/value pair from an account summary.
// The value arrives as a string, the way the terminal reports it.
type AccountValuePayload struct {
	Account  string `json:"account"`
	Key      string `json:"key"` // e.g. "NetLiquidation"
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// CommissionPayload reports commission and realized P&L for an execution.
type CommissionPayload struct {
	ExecID      string  `json:"execId"`
	Commission  float64 `json:"commission"`
	RealizedPnL float64 `json:"realizedPnl"`
}

// ManagedAccountsPayload lists the accounts reachable under this login.
type ManagedAccountsPayload struct {
	Accounts []string `json:"accounts"`
}

// request is an outbound frame. The gateway echoes ReqID on related responses.
type request struct {
	Op      string   `json:"op"`
	ReqID   string   `json:"reqId,omitempty"`
	Args    []string `json:"args,omitempty"`
	Account string   `json:"account,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Topics the collector subscribes to.
const (
	TopicExecution       = "execution"
	TopicAccountValue    = "accountValue"
	TopicCommission      = "commission"
	TopicManagedAccounts = "managedAccounts"
)

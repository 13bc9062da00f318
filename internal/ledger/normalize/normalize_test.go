package normalize

import (
	"errors"
	"testing"
	"time"

	"ledgerd/internal/ledger"
)

// go test -v --run TestNormalizeExecution
func TestNormalizeExecution(t *testing.T) {
	msg := []byte(`{
		"topic": "execution",
		"data": {
			"execId": "0001f4e8.1",
			"acctNumber": "DU1234567",
			"symbol": "AAPL",
			"side": "BOT",
			"shares": 100,
			"price": 189.52,
			"currency": "USD",
			"time": "2026-08-28T14:31:05Z"
		}
	}`)

	ev, err := Normalize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec, ok := ev.(ExecutionEvent)
	if !ok {
		t.Fatalf("expected ExecutionEvent, got %T", ev)
	}
	if exec.Trade.ExecID != "0001f4e8.1" {
		t.Errorf("unexpected execId: %s", exec.Trade.ExecID)
	}
	if exec.Trade.Side != ledger.SideBuy {
		t.Errorf("BOT should normalize to BUY, got %s", exec.Trade.Side)
	}
	if exec.Trade.Quantity != 100 || exec.Trade.Price != 189.52 {
		t.Errorf("unexpected fill: %+v", exec.Trade)
	}

	want := time.Date(2026, 8, 28, 14, 31, 5, 0, time.UTC)
	if !exec.Trade.ExecutedAt.Equal(want) {
		t.Errorf("unexpected timestamp: %v", exec.Trade.ExecutedAt)
	}
}

// go test -v --run TestNormalizeExecutionTerminalTime
func TestNormalizeExecutionTerminalTime(t *testing.T) {
	// The terminal's own stamp format, double space included
	msg := []byte(`{"topic":"execution","data":{"execId":"e1","symbol":"MSFT","side":"SLD","shares":10,"price":410.0,"time":"20260828  14:31:05"}}`)

	ev, err := Normalize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec := ev.(ExecutionEvent)
	if exec.Trade.Side != ledger.SideSell {
		t.Errorf("SLD should normalize to SELL, got %s", exec.Trade.Side)
	}
	if exec.Trade.ExecutedAt.Year() != 2026 || exec.Trade.ExecutedAt.Hour() != 14 {
		t.Errorf("terminal time not parsed: %v", exec.Trade.ExecutedAt)
	}
}

// go test -v --run TestNormalizeExecutionMalformed
func TestNormalizeExecutionMalformed(t *testing.T) {
	cases := map[string]string{
		"missing execId": `{"topic":"execution","data":{"symbol":"AAPL","side":"BOT","shares":100,"price":189.52,"time":"2026-08-28T14:31:05Z"}}`,
		"missing symbol": `{"topic":"execution","data":{"execId":"e1","side":"BOT","shares":100,"price":189.52,"time":"2026-08-28T14:31:05Z"}}`,
		"zero quantity":  `{"topic":"execution","data":{"execId":"e1","symbol":"AAPL","side":"BOT","shares":0,"price":189.52,"time":"2026-08-28T14:31:05Z"}}`,
		"zero price":     `{"topic":"execution","data":{"execId":"e1","symbol":"AAPL","side":"BOT","shares":100,"price":0,"time":"2026-08-28T14:31:05Z"}}`,
		"unknown side":   `{"topic":"execution","data":{"execId":"e1","symbol":"AAPL","side":"HOLD","shares":100,"price":189.52,"time":"2026-08-28T14:31:05Z"}}`,
		"bad timestamp":  `{"topic":"execution","data":{"execId":"e1","symbol":"AAPL","side":"BOT","shares":100,"price":189.52,"time":"yesterday"}}`,
	}

	for name, msg := range cases {
		if _, err := Normalize([]byte(msg)); !errors.Is(err, ErrMalformedExecution) {
			t.Errorf("%s: expected ErrMalformedExecution, got %v", name, err)
		}
	}
}

// go test -v --run TestNormalizeAccountValue
func TestNormalizeAccountValue(t *testing.T) {
	msg := []byte(`{"topic":"accountValue","data":{"account":"DU1234567","key":"NetLiquidation","value":"100000.50","currency":"USD"}}`)

	ev, err := Normalize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bal, ok := ev.(AccountValueEvent)
	if !ok {
		t.Fatalf("expected AccountValueEvent, got %T", ev)
	}
	if bal.AccountID != "DU1234567" || bal.Value != 100000.50 || bal.Currency != "USD" {
		t.Errorf("unexpected event: %+v", bal)
	}
}

// go test -v --run TestNormalizeAccountValueIrrelevantKey
func TestNormalizeAccountValueIrrelevantKey(t *testing.T) {
	// Only NetLiquidation is tracked; every other summary tag is discarded
	msg := []byte(`{"topic":"accountValue","data":{"account":"DU1234567","key":"BuyingPower","value":"400000","currency":"USD"}}`)

	if _, err := Normalize(msg); !errors.Is(err, ErrIrrelevant) {
		t.Errorf("expected ErrIrrelevant, got %v", err)
	}
}

// go test -v --run TestNormalizeUnknownTopic
func TestNormalizeUnknownTopic(t *testing.T) {
	for _, msg := range []string{
		`{"topic":"subscribeAck","data":{}}`,
		`{"op":"pong"}`,
		`not even json`,
	} {
		if _, err := Normalize([]byte(msg)); !errors.Is(err, ErrIrrelevant) {
			t.Errorf("%s: expected ErrIrrelevant, got %v", msg, err)
		}
	}
}

// go test -v --run TestNormalizeCommission
func TestNormalizeCommission(t *testing.T) {
	msg := []byte(`{"topic":"commission","data":{"execId":"0001f4e8.1","commission":1.25,"realizedPnl":-42.5}}`)

	ev, err := Normalize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	com := ev.(CommissionEvent)
	if com.ExecID != "0001f4e8.1" || com.Commission != 1.25 || com.RealizedPnL != -42.5 {
		t.Errorf("unexpected event: %+v", com)
	}
}

// go test -v --run TestNormalizeManagedAccounts
func TestNormalizeManagedAccounts(t *testing.T) {
	msg := []byte(`{"topic":"managedAccounts","data":{"accounts":["DU1234567","","DU7654321"]}}`)

	ev, err := Normalize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acc := ev.(ManagedAccountsEvent)
	if len(acc.Accounts) != 2 {
		t.Fatalf("expected 2 accounts after filtering empties, got %d", len(acc.Accounts))
	}
}

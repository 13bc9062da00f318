// Package reconcile merges normalized broker events into the durable ledger.
// All writes go through a single apply loop, so the merge logic never races
// against itself; readers query storage or AccountState directly.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/normalize"

	"go.uber.org/zap"
)

// ErrPersistExhausted marks a storage write that failed past the retry
// budget. Losing a trade is the one unacceptable silent failure here, so
// this always surfaces as a notification.
var ErrPersistExhausted = errors.New("ledger write failed after retries")

// Store is the durable ledger surface the engine writes to. Implementations
// must flush before returning, so a nil error means the record survives a
// crash.
type Store interface {
	UpsertTrade(ctx context.Context, t ledger.Trade) error
	AppendSnapshot(ctx context.Context, s ledger.BalanceSnapshot) error
}

type NotificationKind int

const (
	TradeAdded NotificationKind = iota
	TradeUpdated
	BalanceRecorded
	ConnectionChanged
	PersistFailed
)

// Notification is what the presentation collaborator sees. Only the fields
// relevant to Kind are set.
type Notification struct {
	Kind     NotificationKind
	Trade    *ledger.Trade
	Snapshot *ledger.BalanceSnapshot
	Conn     ledger.ConnState
	Err      error
}

// Config tunes the merge policy.
type Config struct {
	SnapshotEpsilon        float64       // balance delta below this is terminal noise
	MinSnapshotInterval    time.Duration // sampling floor for unchanged balances
	AlwaysRecordOnInterval bool          // record every interval even when unchanged
	RetryLimit             int           // extra write attempts before escalating
	RetryBackoff           time.Duration
	QueueSize              int
	WriteTimeout           time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

type Engine struct {
	cfg    Config
	store  Store
	state  *ledger.AccountState
	logger *zap.Logger

	mu         sync.RWMutex
	trades     map[string]ledger.Trade           // execution-id index of the full ledger
	lastSnap   map[string]ledger.BalanceSnapshot // last persisted snapshot per account
	persistErr error                             // latched storage escalation

	queue  chan normalize.Event
	notifs chan Notification
	closed atomic.Bool
	done   chan struct{}

	onConnected func() // fired on transition into Connected

	now func() time.Time
}

func New(cfg Config, store Store, state *ledger.AccountState, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		store:    store,
		state:    state,
		logger:   logger,
		trades:   make(map[string]ledger.Trade),
		lastSnap: make(map[string]ledger.BalanceSnapshot),
		queue:    make(chan normalize.Event, cfg.QueueSize),
		notifs:   make(chan Notification, 64),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Seed loads the reconstructed ledger before Start. Not safe after Start.
func (e *Engine) Seed(trades []ledger.Trade, lastSnaps map[string]ledger.BalanceSnapshot) {
	for _, t := range trades {
		e.trades[t.ExecID] = t
	}
	for account, snap := range lastSnaps {
		e.lastSnap[account] = snap
		e.state.UpdateBalance(account, snap.Value, snap.Currency, snap.ObservedAt)
	}
}

// Notifications is the stream consumed by the presentation collaborator.
func (e *Engine) Notifications() <-chan Notification {
	return e.notifs
}

// SetOnConnected registers the poll trigger fired when the session comes up.
func (e *Engine) SetOnConnected(fn func()) {
	e.onConnected = fn
}

// SetSampling replaces the balance sampling policy. Safe while running; the
// next balance merge uses the new values.
func (e *Engine) SetSampling(epsilon float64, minInterval time.Duration, alwaysOnInterval bool) {
	e.mu.Lock()
	e.cfg.SnapshotEpsilon = epsilon
	e.cfg.MinSnapshotInterval = minInterval
	e.cfg.AlwaysRecordOnInterval = alwaysOnInterval
	e.mu.Unlock()
}

// PersistFailure returns the most recent storage escalation, or nil. It is
// latched independently of the notification channel so a slow consumer can
// never miss that ledger data went unsaved.
func (e *Engine) PersistFailure() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.persistErr
}

// Start launches the single-writer apply loop. When ctx is cancelled the loop
// drains whatever is buffered to durable storage before signalling Done.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Apply enqueues one normalized event in delivery order. It blocks when the
// queue is full, which is the backpressure the transport callback needs.
func (e *Engine) Apply(ev normalize.Event) {
	if e.closed.Load() {
		e.logger.Warn("event dropped: engine closed")
		return
	}
	e.queue <- ev
}

// Close stops intake. Callers must stop the transport first so no Apply is
// in flight.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.queue)
	}
}

// Done is closed once the apply loop has drained and exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Trade returns the indexed trade for an execution id.
func (e *Engine) Trade(execID string) (ledger.Trade, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trades[execID]
	return t, ok
}

// TradeCount returns the ledger size as the engine sees it.
func (e *Engine) TradeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.trades)
}

// SetConnState records a session transition and fires the reconnect poll.
// The gateway may replay executions already stored; the merge makes replay
// safe, so nothing is assumed lost on a drop.
func (e *Engine) SetConnState(s ledger.ConnState) {
	if e.state.ConnState() == s {
		return
	}
	e.state.SetConnState(s)
	e.notify(Notification{Kind: ConnectionChanged, Conn: s})
	e.logger.Info("session state", zap.String("state", s.String()))

	if s == ledger.Connected && e.onConnected != nil {
		go e.onConnected()
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		select {
		case ev, ok := <-e.queue:
			if !ok {
				return
			}
			e.dispatch(ev)
		case <-ctx.Done():
			// Shutdown: flush buffered events before exit
			e.closed.Store(true)
			for {
				select {
				case ev, ok := <-e.queue:
					if !ok {
						return
					}
					e.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) dispatch(ev normalize.Event) {
	switch ev := ev.(type) {
	case normalize.ExecutionEvent:
		e.mergeExecution(ev.Trade)
	case normalize.CommissionEvent:
		e.mergeCommission(ev)
	case normalize.AccountValueEvent:
		e.mergeBalance(ev)
	case normalize.ManagedAccountsEvent:
		e.state.SetManagedAccounts(ev.Accounts)
		e.logger.Info("managed accounts", zap.Strings("accounts", ev.Accounts))
	default:
		e.logger.Warn("unhandled event type", zap.Any("event", ev))
	}
}

// mergeExecution applies the insert / no-op / correction decision for one
// execution report.
func (e *Engine) mergeExecution(t ledger.Trade) {
	e.mu.RLock()
	existing, known := e.trades[t.ExecID]
	e.mu.RUnlock()

	if known {
		// Keep financials already patched in by a commission report; the
		// replayed execution does not carry them.
		if t.Commission == 0 && t.RealizedPnL == 0 {
			t.Commission = existing.Commission
			t.RealizedPnL = existing.RealizedPnL
		}
		if existing.Equal(t) {
			// Idempotent re-delivery, common on reconnect replay
			return
		}
	}

	if err := e.persist("upsert trade", func(ctx context.Context) error {
		return e.store.UpsertTrade(ctx, t)
	}); err != nil {
		e.notify(Notification{Kind: PersistFailed, Trade: &t, Err: err})
		return
	}

	e.mu.Lock()
	e.trades[t.ExecID] = t
	e.mu.Unlock()

	kind := TradeAdded
	if known {
		kind = TradeUpdated
		e.logger.Info("trade corrected",
			zap.String("execId", t.ExecID),
			zap.String("symbol", t.Symbol))
	} else {
		e.logger.Info("trade added",
			zap.String("execId", t.ExecID),
			zap.String("symbol", t.Symbol),
			zap.Float64("quantity", t.Quantity),
			zap.Float64("price", t.Price))
	}
	e.notify(Notification{Kind: kind, Trade: &t})
}

// mergeCommission patches commission and realized P&L onto a stored trade.
// Reports for unknown execution ids are dropped, matching the terminal's
// behavior of sending them only alongside executions.
func (e *Engine) mergeCommission(ev normalize.CommissionEvent) {
	e.mu.RLock()
	existing, known := e.trades[ev.ExecID]
	e.mu.RUnlock()

	if !known {
		e.logger.Debug("commission for unknown execution", zap.String("execId", ev.ExecID))
		return
	}

	pnl := ev.RealizedPnL
	// The terminal reports float-max when P&L is not applicable
	if pnl >= math.MaxFloat64/2 {
		pnl = 0
	}

	updated := existing
	updated.Commission = ev.Commission
	updated.RealizedPnL = pnl
	if existing.Equal(updated) {
		return
	}

	if err := e.persist("patch trade financials", func(ctx context.Context) error {
		return e.store.UpsertTrade(ctx, updated)
	}); err != nil {
		e.notify(Notification{Kind: PersistFailed, Trade: &updated, Err: err})
		return
	}

	e.mu.Lock()
	e.trades[updated.ExecID] = updated
	e.mu.Unlock()
	e.notify(Notification{Kind: TradeUpdated, Trade: &updated})
}

// mergeBalance keeps AccountState fresh on every value and persists a
// snapshot only when the value moved or the sampling interval elapsed.
func (e *Engine) mergeBalance(ev normalize.AccountValueEvent) {
	observedAt := e.now()
	e.state.UpdateBalance(ev.AccountID, ev.Value, ev.Currency, observedAt)

	e.mu.RLock()
	eps := e.cfg.SnapshotEpsilon
	minInterval := e.cfg.MinSnapshotInterval
	heartbeat := e.cfg.AlwaysRecordOnInterval
	last, have := e.lastSnap[ev.AccountID]
	e.mu.RUnlock()

	record := !have ||
		math.Abs(ev.Value-last.Value) > eps ||
		(heartbeat && observedAt.Sub(last.ObservedAt) >= minInterval)
	if !record {
		return
	}

	snap := ledger.BalanceSnapshot{
		AccountID:  ev.AccountID,
		Value:      ev.Value,
		Currency:   ev.Currency,
		ObservedAt: observedAt,
	}
	if err := e.persist("append snapshot", func(ctx context.Context) error {
		return e.store.AppendSnapshot(ctx, snap)
	}); err != nil {
		e.notify(Notification{Kind: PersistFailed, Snapshot: &snap, Err: err})
		return
	}

	e.mu.Lock()
	e.lastSnap[ev.AccountID] = snap
	e.mu.Unlock()
	e.logger.Info("balance recorded",
		zap.String("account", ev.AccountID),
		zap.Float64("value", ev.Value))
	e.notify(Notification{Kind: BalanceRecorded, Snapshot: &snap})
}

// persist runs one storage write with bounded retry and backoff. Exhausted
// retries escalate; the event is never silently dropped.
func (e *Engine) persist(op string, write func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * e.cfg.RetryBackoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WriteTimeout)
		err = write(ctx)
		cancel()
		if err == nil {
			return nil
		}
		e.logger.Warn("ledger write failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	e.logger.Error("ledger write abandoned", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrPersistExhausted, op, err)
}

func (e *Engine) notify(n Notification) {
	// Persist failures latch regardless of channel pressure; every other
	// kind is droppable under a slow consumer.
	if n.Kind == PersistFailed {
		e.mu.Lock()
		e.persistErr = n.Err
		e.mu.Unlock()
	}
	select {
	case e.notifs <- n:
	default:
		e.logger.Warn("notification dropped: consumer too slow", zap.Int("kind", int(n.Kind)))
	}
}

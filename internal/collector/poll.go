package collector

import (
	"context"
	"sync/atomic"
	"time"

	"ledgerd/internal/ledger"

	"go.uber.org/zap"
)

// gatewayRequester is the outbound slice of the gateway client the poller
// needs: request frames only, no session lifecycle.
type gatewayRequester interface {
	RequestExecutions() error
	RequestAccountSummary(account string) error
}

// Poller drives the periodic executions refresh and balance polls. A poll is
// just a set of request frames; the responses come back on the event stream
// and are merged like any other event, so polling is idempotent.
type Poller struct {
	client   gatewayRequester
	state    *ledger.AccountState
	logger   *zap.Logger
	interval atomic.Int64 // nanoseconds
	busy     atomic.Bool
}

func NewPoller(client gatewayRequester, state *ledger.AccountState, interval time.Duration, logger *zap.Logger) *Poller {
	p := &Poller{
		client: client,
		state:  state,
		logger: logger,
	}
	p.SetInterval(interval)
	return p
}

// SetInterval changes the refresh cadence; takes effect from the next cycle.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		d = 5 * time.Second
	}
	p.interval.Store(int64(d))
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		select {
		case <-time.After(time.Duration(p.interval.Load())):
			p.PollNow()
		case <-ctx.Done():
			return
		}
	}
}

// PollNow requests an executions replay plus a NetLiquidation summary for
// every managed account. If the previous poll is still being sent the cycle
// is skipped; polls never overlap per account.
func (p *Poller) PollNow() {
	if p.state.ConnState() != ledger.Connected {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug("poll still in flight; skipping cycle")
		return
	}
	defer p.busy.Store(false)

	if err := p.client.RequestExecutions(); err != nil {
		p.logger.Warn("executions refresh failed", zap.Error(err))
		return
	}
	for _, account := range p.state.ManagedAccounts() {
		if err := p.client.RequestAccountSummary(account); err != nil {
			p.logger.Warn("balance poll failed",
				zap.String("account", account),
				zap.Error(err))
			return
		}
	}
}

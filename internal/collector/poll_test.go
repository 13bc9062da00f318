package collector

import (
	"sync"
	"testing"
	"time"

	"ledgerd/internal/ledger"

	"go.uber.org/zap"
)

type fakeRequester struct {
	mu        sync.Mutex
	execCalls int
	acctCalls []string
	block     chan struct{} // when set, RequestExecutions parks until closed
}

func (f *fakeRequester) RequestExecutions() error {
	f.mu.Lock()
	f.execCalls++
	blk := f.block
	f.mu.Unlock()
	if blk != nil {
		<-blk
	}
	return nil
}

func (f *fakeRequester) RequestAccountSummary(account string) error {
	f.mu.Lock()
	f.acctCalls = append(f.acctCalls, account)
	f.mu.Unlock()
	return nil
}

func (f *fakeRequester) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execCalls, len(f.acctCalls)
}

// go test -v --run TestPollNowSkipsWhenDisconnected
func TestPollNowSkipsWhenDisconnected(t *testing.T) {
	req := &fakeRequester{}
	state := ledger.NewAccountState()
	state.SetManagedAccounts([]string{"DU1234567"})

	NewPoller(req, state, time.Second, zap.NewNop()).PollNow()

	if execs, accts := req.counts(); execs != 0 || accts != 0 {
		t.Errorf("poll issued requests without a session: %d execs, %d accounts", execs, accts)
	}
}

// go test -v --run TestPollNowFansOutAccounts
func TestPollNowFansOutAccounts(t *testing.T) {
	req := &fakeRequester{}
	state := ledger.NewAccountState()
	state.SetConnState(ledger.Connected)
	state.SetManagedAccounts([]string{"DU1234567", "DU7654321"})

	NewPoller(req, state, time.Second, zap.NewNop()).PollNow()

	if execs, accts := req.counts(); execs != 1 || accts != 2 {
		t.Errorf("expected 1 executions refresh and 2 balance polls, got %d and %d", execs, accts)
	}
}

// go test -v --run TestPollNowSkipsOverlap
func TestPollNowSkipsOverlap(t *testing.T) {
	req := &fakeRequester{block: make(chan struct{})}
	state := ledger.NewAccountState()
	state.SetConnState(ledger.Connected)
	state.SetManagedAccounts([]string{"DU1234567"})

	p := NewPoller(req, state, time.Second, zap.NewNop())

	firstDone := make(chan struct{})
	go func() {
		p.PollNow()
		close(firstDone)
	}()

	// Wait until the first poll is parked inside the gateway call
	deadline := time.Now().Add(time.Second)
	for {
		if execs, _ := req.counts(); execs == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first poll never started")
		}
		time.Sleep(time.Millisecond)
	}

	// A cycle landing mid-poll is skipped, not queued
	p.PollNow()
	if execs, accts := req.counts(); execs != 1 || accts != 0 {
		t.Errorf("overlapping poll was not skipped: %d execs, %d accounts", execs, accts)
	}

	close(req.block)
	<-firstDone
	if execs, accts := req.counts(); execs != 1 || accts != 1 {
		t.Errorf("first poll did not finish its fan-out: %d execs, %d accounts", execs, accts)
	}
}

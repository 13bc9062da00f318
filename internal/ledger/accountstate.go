package ledger

import (
	"sync"
	"time"
)

// Balance is the freshest known account value, independent of whether the
// observation was sampled into the snapshot history.
type Balance struct {
	Value     float64
	Currency  string
	UpdatedAt time.Time
}

// AccountState holds the latest known balance per account plus the session
// connection state, so calculator defaults never re-scan snapshot history.
type AccountState struct {
	mu       sync.RWMutex
	accounts []string
	balances map[string]Balance
	conn     ConnState
}

func NewAccountState() *AccountState {
	return &AccountState{
		balances: make(map[string]Balance),
	}
}

// SetManagedAccounts replaces the list of accounts reachable under the login.
func (s *AccountState) SetManagedAccounts(accounts []string) {
	cp := make([]string, len(accounts))
	copy(cp, accounts)

	s.mu.Lock()
	s.accounts = cp
	s.mu.Unlock()
}

func (s *AccountState) ManagedAccounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make([]string, len(s.accounts))
	copy(cp, s.accounts)
	return cp
}

// UpdateBalance records the latest value for an account unconditionally.
func (s *AccountState) UpdateBalance(account string, value float64, currency string, at time.Time) {
	s.mu.Lock()
	s.balances[account] = Balance{Value: value, Currency: currency, UpdatedAt: at}
	s.mu.Unlock()
}

func (s *AccountState) LatestBalance(account string) (Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[account]
	return b, ok
}

func (s *AccountState) SetConnState(state ConnState) {
	s.mu.Lock()
	s.conn = state
	s.mu.Unlock()
}

func (s *AccountState) ConnState() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

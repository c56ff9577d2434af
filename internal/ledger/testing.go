package ledger

import "github.com/dailycoin/ubi-ledger/internal/calendar"

// SeedBalance is a test helper that writes a balance record directly when using
// the in-memory store. The currency supply is left untouched.
func SeedBalance(s Store, b Balance) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.state.balances[balanceKey{b.Owner, b.Balance.Symbol.Code}] = b
	}
}

// SeedLastSettlement rewinds or advances an account's settlement day in the
// in-memory store.
func SeedLastSettlement(s Store, owner, code string, day calendar.Day) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		key := balanceKey{owner, code}
		if b, exists := mem.state.balances[key]; exists {
			b.LastSettlementDay = day
			mem.state.balances[key] = b
		}
	}
}

// SeedStats overwrites a currency stats record in the in-memory store.
func SeedStats(s Store, st Stats) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if prev, exists := mem.state.stats[st.Symbol().Code]; exists && st.Version == 0 {
			st.Version = prev.Version
		}
		if st.Version == 0 {
			st.Version = 1
		}
		mem.state.stats[st.Symbol().Code] = st
	}
}

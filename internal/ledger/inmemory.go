package ledger

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
)

type balanceKey struct {
	owner string
	code  string
}

type memState struct {
	balances map[balanceKey]Balance
	stats    map[string]Stats
	shares   map[string]map[string]uint8
	profiles map[string]string
}

func newMemState() memState {
	return memState{
		balances: make(map[balanceKey]Balance),
		stats:    make(map[string]Stats),
		shares:   make(map[string]map[string]uint8),
		profiles: make(map[string]string),
	}
}

func (s memState) clone() memState {
	out := memState{
		balances: maps.Clone(s.balances),
		stats:    maps.Clone(s.stats),
		shares:   make(map[string]map[string]uint8, len(s.shares)),
		profiles: maps.Clone(s.profiles),
	}
	for owner, list := range s.shares {
		out.shares[owner] = maps.Clone(list)
	}
	return out
}

type inMemoryStore struct {
	mu    sync.Mutex
	state memState
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and development. Transactions are serialized and work on a copy of the state
// that replaces the original only on success.
func NewInMemory() Store {
	return &inMemoryStore{state: newMemState()}
}

func (s *inMemoryStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTx struct {
	state memState
}

func (t *memTx) GetBalance(_ context.Context, owner, code string) (Balance, error) {
	b, ok := t.state.balances[balanceKey{owner, code}]
	if !ok {
		return Balance{}, ErrNoBalanceRecord
	}
	return b, nil
}

func (t *memTx) InsertBalance(_ context.Context, b Balance) error {
	key := balanceKey{b.Owner, b.Balance.Symbol.Code}
	if _, exists := t.state.balances[key]; exists {
		return fmt.Errorf("%w: balance %s/%s exists", ErrConflict, b.Owner, key.code)
	}
	t.state.balances[key] = b
	return nil
}

func (t *memTx) UpdateBalance(_ context.Context, b Balance) error {
	key := balanceKey{b.Owner, b.Balance.Symbol.Code}
	prev, exists := t.state.balances[key]
	if !exists {
		return ErrNoBalanceRecord
	}
	b.Payer = prev.Payer
	t.state.balances[key] = b
	return nil
}

func (t *memTx) DeleteBalance(_ context.Context, owner, code string) error {
	key := balanceKey{owner, code}
	if _, exists := t.state.balances[key]; !exists {
		return ErrNoBalanceRecord
	}
	delete(t.state.balances, key)
	return nil
}

func (t *memTx) GetStats(_ context.Context, code string) (Stats, error) {
	st, ok := t.state.stats[code]
	if !ok {
		return Stats{}, fmt.Errorf("%w: token with symbol %s does not exist", ErrNotFound, code)
	}
	return st, nil
}

func (t *memTx) InsertStats(_ context.Context, st Stats) error {
	code := st.Symbol().Code
	if _, exists := t.state.stats[code]; exists {
		return fmt.Errorf("%w: token with symbol %s already exists", ErrConflict, code)
	}
	st.Version = 1
	t.state.stats[code] = st
	return nil
}

func (t *memTx) UpdateStats(_ context.Context, st Stats) (Stats, error) {
	code := st.Symbol().Code
	prev, ok := t.state.stats[code]
	if !ok {
		return Stats{}, fmt.Errorf("%w: token with symbol %s does not exist", ErrNotFound, code)
	}
	if prev.Version != st.Version {
		return Stats{}, fmt.Errorf("%w: stats for %s changed (version %d, have %d)", ErrConflict, code, prev.Version, st.Version)
	}
	st.Version++
	t.state.stats[code] = st
	return st, nil
}

func (t *memTx) ListShares(_ context.Context, owner string) ([]Share, error) {
	list := t.state.shares[owner]
	out := make([]Share, 0, len(list))
	for to, pct := range list {
		out = append(out, Share{Owner: owner, Beneficiary: to, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Beneficiary < out[j].Beneficiary })
	return out, nil
}

func (t *memTx) PutShare(_ context.Context, sh Share) error {
	list, ok := t.state.shares[sh.Owner]
	if !ok {
		list = make(map[string]uint8)
		t.state.shares[sh.Owner] = list
	}
	list[sh.Beneficiary] = sh.Percent
	return nil
}

func (t *memTx) DeleteShare(_ context.Context, owner, beneficiary string) error {
	list := t.state.shares[owner]
	if _, ok := list[beneficiary]; !ok {
		return fmt.Errorf("%w: share %s->%s", ErrNotFound, owner, beneficiary)
	}
	delete(list, beneficiary)
	if len(list) == 0 {
		delete(t.state.shares, owner)
	}
	return nil
}

func (t *memTx) DeleteShares(_ context.Context, owner string) error {
	delete(t.state.shares, owner)
	return nil
}

func (t *memTx) GetProfile(_ context.Context, owner string) (Profile, error) {
	p, ok := t.state.profiles[owner]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
	}
	return Profile{Owner: owner, Profile: p}, nil
}

func (t *memTx) PutProfile(_ context.Context, p Profile) error {
	t.state.profiles[p.Owner] = p.Profile
	return nil
}

func (t *memTx) DeleteProfile(_ context.Context, owner string) error {
	if _, ok := t.state.profiles[owner]; !ok {
		return fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
	}
	delete(t.state.profiles, owner)
	return nil
}

package ubi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/events"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
)

var xdl = asset.NewSymbol("XDL")

const maxSupply = int64(10_000_000_000_0000)

type stepClock struct{ day calendar.Day }

func (c *stepClock) Today() calendar.Day { return c.day }

func noBonus() Policy {
	p := DefaultPolicy()
	p.SignupBonusCutoffDay = 0
	return p
}

func newStore(supply int64, balances ...ledger.Balance) ledger.Store {
	store := ledger.NewInMemory()
	ledger.SeedStats(store, ledger.Stats{
		Supply:    asset.New(supply, xdl),
		MaxSupply: asset.New(maxSupply, xdl),
		Issuer:    "issuer",
		Burned:    asset.New(0, xdl),
	})
	for _, b := range balances {
		ledger.SeedBalance(store, b)
	}
	return store
}

func account(owner string, amount int64, lcd calendar.Day) ledger.Balance {
	return ledger.Balance{Owner: owner, Balance: asset.New(amount, xdl), LastSettlementDay: lcd, Payer: owner}
}

func settle(t *testing.T, store ledger.Store, eng *Engine, owner string, strict bool) (Settlement, []events.Event, error) {
	t.Helper()
	ctx := context.Background()
	var (
		buf events.Buffer
		res Settlement
	)
	err := store.WithinTx(ctx, func(tx ledger.Tx) error {
		st, err := tx.GetStats(ctx, xdl.Code)
		if err != nil {
			return err
		}
		res, err = eng.Settle(ctx, tx, st, SettleRequest{Owner: owner, Symbol: xdl, Payer: owner, FailIfNothingDue: strict}, &buf)
		return err
	})
	return res, buf.Events(), err
}

func read(t *testing.T, store ledger.Store, owner string) (ledger.Balance, ledger.Stats) {
	t.Helper()
	ctx := context.Background()
	var (
		bal ledger.Balance
		st  ledger.Stats
	)
	require.NoError(t, store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		if bal, err = tx.GetBalance(ctx, owner, xdl.Code); err != nil {
			return err
		}
		st, err = tx.GetStats(ctx, xdl.Code)
		return err
	}))
	return bal, st
}

func TestFirstSettlementPaysOneDay(t *testing.T) {
	store := newStore(0, account("alice", 0, 0))
	eng := NewEngine(calendar.FixedClock(100), MustDecay("0.999"), noBonus())

	res, evs, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	require.True(t, res.Settled)
	require.Equal(t, int64(10_000), res.Claimed)
	require.Zero(t, res.Burned)
	require.Equal(t, int64(101), res.NextClaimDay)

	bal, st := read(t, store, "alice")
	require.Equal(t, int64(10_000), bal.Balance.Amount)
	require.Equal(t, calendar.Day(100), bal.LastSettlementDay)
	require.Equal(t, int64(10_000), st.Supply.Amount)
	require.Equal(t, uint64(1), st.Claims)
	require.Equal(t, res.Stats, st)

	require.Len(t, evs, 2)
	require.Equal(t, events.KindBurn, evs[0].Kind)
	require.Equal(t, "0.0000 XDL", evs[0].Data["quantity"])
	require.Equal(t, events.KindIncome, evs[1].Kind)
	require.Equal(t, "1.0000 XDL", evs[1].Data["quantity"])
	require.Equal(t, "next on 12-04-1970", evs[1].Data["memo"])
}

func TestSettlementPaysPendingDays(t *testing.T) {
	store := newStore(0, account("alice", 0, 50))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	res, _, err := settle(t, store, eng, "alice", false)
	require.NoError(t, err)
	require.Equal(t, int64(50_000), res.Claimed)
	require.Zero(t, res.LostDays)
	require.Equal(t, int64(56), res.NextClaimDay)
}

func TestSettlementCapsPastDays(t *testing.T) {
	store := newStore(3_610_000, account("alice", 3_610_000, 50))
	eng := NewEngine(calendar.FixedClock(500), MustDecay("0.999"), noBonus())

	res, evs, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	require.Equal(t, int64(4_451), res.Burned)
	require.Equal(t, int64(3_610_000), res.Claimed)
	require.Equal(t, int64(89), res.LostDays)
	require.Equal(t, int64(501), res.NextClaimDay)
	require.Equal(t, "next on 17-05-1971, lost 89 days of income.", evs[1].Data["memo"])
	require.Equal(t, "89", evs[1].Data["lost_days"])

	bal, st := read(t, store, "alice")
	require.Equal(t, int64(3_605_549+3_610_000), bal.Balance.Amount)
	require.Equal(t, int64(4_451), st.Burned.Amount)
	require.Equal(t, bal.Balance.Amount, st.Supply.Amount)
}

func TestSettlementDistributesShares(t *testing.T) {
	store := newStore(0, account("alice", 0, 0))
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := tx.PutShare(ctx, ledger.Share{Owner: "alice", Beneficiary: "carol", Percent: 40}); err != nil {
			return err
		}
		return tx.PutShare(ctx, ledger.Share{Owner: "alice", Beneficiary: "bob", Percent: 60})
	}))
	eng := NewEngine(calendar.FixedClock(100), MustDecay("0.999"), noBonus())

	res, evs, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	require.Equal(t, []Portion{
		{Beneficiary: "bob", Amount: 6_000, Percent: 60},
		{Beneficiary: "carol", Amount: 4_000, Percent: 40},
	}, res.Distribution.Portions)
	require.Zero(t, res.Distribution.Residue)

	alice, st := read(t, store, "alice")
	require.Zero(t, alice.Balance.Amount)
	bob, _ := read(t, store, "bob")
	require.Equal(t, int64(6_000), bob.Balance.Amount)
	require.Equal(t, "alice", bob.Payer)
	require.Zero(t, bob.LastSettlementDay)
	carol, _ := read(t, store, "carol")
	require.Equal(t, int64(4_000), carol.Balance.Amount)
	require.Equal(t, int64(10_000), st.Supply.Amount)

	require.Len(t, evs, 4)
	require.Equal(t, events.KindShareIncome, evs[2].Kind)
	require.Equal(t, "bob", evs[2].Account)
	require.Equal(t, "alice", evs[2].Data["from"])
	require.Equal(t, "60", evs[2].Data["percent"])
}

func TestSettlementClampsToMaxSupply(t *testing.T) {
	store := newStore(maxSupply-20_000, account("alice", 0, 50))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	res, _, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	require.Equal(t, int64(20_000), res.Claimed)
	require.Equal(t, int64(53), res.NextClaimDay)

	_, st := read(t, store, "alice")
	require.Equal(t, maxSupply, st.Supply.Amount)
}

func TestSettlementWithExhaustedSupply(t *testing.T) {
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	t.Run("strict aborts", func(t *testing.T) {
		store := newStore(maxSupply, account("alice", 0, 50))
		_, _, err := settle(t, store, eng, "alice", true)
		require.ErrorIs(t, err, ledger.ErrNoCoinsAvailable)

		bal, st := read(t, store, "alice")
		require.Equal(t, calendar.Day(50), bal.LastSettlementDay)
		require.Zero(t, st.Claims)
	})

	t.Run("lenient keeps the settlement day", func(t *testing.T) {
		store := newStore(maxSupply, account("alice", 0, 50))
		res, evs, err := settle(t, store, eng, "alice", false)
		require.NoError(t, err)
		require.True(t, res.Settled)
		require.Zero(t, res.Claimed)
		require.Len(t, evs, 1)

		bal, st := read(t, store, "alice")
		require.Equal(t, calendar.Day(55), bal.LastSettlementDay)
		require.Zero(t, st.Claims)
		require.Equal(t, maxSupply, st.Supply.Amount)
	})
}

func TestDemurrageFreesRoomForIncome(t *testing.T) {
	store := newStore(maxSupply, account("alice", 10_000_000, 54))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	res, _, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	require.Equal(t, int64(28), res.Burned)
	require.Equal(t, int64(28), res.Claimed)

	bal, st := read(t, store, "alice")
	require.Equal(t, int64(10_000_000), bal.Balance.Amount)
	require.Equal(t, maxSupply, st.Supply.Amount)
	require.Equal(t, int64(28), st.Burned.Amount)
}

func TestSameDaySettlementIsNoop(t *testing.T) {
	store := newStore(0, account("alice", 0, 50))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	_, _, err := settle(t, store, eng, "alice", true)
	require.NoError(t, err)
	_, before := read(t, store, "alice")

	res, evs, err := settle(t, store, eng, "alice", false)
	require.NoError(t, err)
	require.False(t, res.Settled)
	require.Empty(t, evs)
	_, after := read(t, store, "alice")
	require.Equal(t, before, after)

	_, _, err = settle(t, store, eng, "alice", true)
	require.ErrorIs(t, err, ledger.ErrNothingDue)
}

func TestSettlementRequiresBalanceRecord(t *testing.T) {
	store := newStore(0)
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())

	_, _, err := settle(t, store, eng, "ghost", false)
	require.ErrorIs(t, err, ledger.ErrNoBalanceRecord)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSettlementRejectsStaleStats(t *testing.T) {
	store := newStore(0, account("alice", 0, 50))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx ledger.Tx) error {
		st, err := tx.GetStats(ctx, xdl.Code)
		if err != nil {
			return err
		}
		if _, err := tx.UpdateStats(ctx, st); err != nil {
			return err
		}
		_, err = eng.Settle(ctx, tx, st, SettleRequest{Owner: "alice", Symbol: xdl, Payer: "alice"}, nil)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrConflict)
}

func TestSettlementRejectsForeignSymbol(t *testing.T) {
	store := newStore(0, account("alice", 0, 50))
	eng := NewEngine(calendar.FixedClock(55), MustDecay("0.999"), noBonus())
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx ledger.Tx) error {
		st, err := tx.GetStats(ctx, xdl.Code)
		if err != nil {
			return err
		}
		_, err = eng.Settle(ctx, tx, st, SettleRequest{Owner: "alice", Symbol: asset.NewSymbol("ABC")}, nil)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestCountersOnlyGrow(t *testing.T) {
	clock := &stepClock{day: 1000}
	store := newStore(50_000_000, account("alice", 50_000_000, 990), account("bob", 0, 0))
	eng := NewEngine(clock, MustDecay("0.999"), noBonus())

	var prevBurned int64
	var prevClaims uint64
	for i := 0; i < 40; i++ {
		clock.day += calendar.Day(i%3 + 1)
		for _, owner := range []string{"alice", "bob"} {
			_, _, err := settle(t, store, eng, owner, false)
			require.NoError(t, err)
		}
		alice, st := read(t, store, "alice")
		bob, _ := read(t, store, "bob")
		require.GreaterOrEqual(t, st.Burned.Amount, prevBurned)
		require.Greater(t, st.Claims, prevClaims)
		require.Equal(t, alice.Balance.Amount+bob.Balance.Amount, st.Supply.Amount)
		require.LessOrEqual(t, st.Supply.Amount, st.MaxSupply.Amount)
		prevBurned, prevClaims = st.Burned.Amount, st.Claims
	}
}

func TestCreditAndDebit(t *testing.T) {
	store := newStore(0, account("alice", 5_000, 10))
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(tx ledger.Tx) error {
		bal, err := Credit(ctx, tx, "dave", asset.New(700, xdl), "alice")
		require.NoError(t, err)
		require.Equal(t, "alice", bal.Payer)
		require.Equal(t, int64(700), bal.Balance.Amount)

		bal, err = Credit(ctx, tx, "alice", asset.New(1_000, xdl), "alice")
		require.NoError(t, err)
		require.Equal(t, int64(6_000), bal.Balance.Amount)
		require.Equal(t, calendar.Day(10), bal.LastSettlementDay)

		bal, err = Debit(ctx, tx, "alice", asset.New(6_000, xdl))
		require.NoError(t, err)
		require.Zero(t, bal.Balance.Amount)
		return nil
	}))

	err := store.WithinTx(ctx, func(tx ledger.Tx) error {
		_, err := Debit(ctx, tx, "dave", asset.New(701, xdl))
		return err
	})
	require.ErrorIs(t, err, ledger.ErrOverdrawn)

	err = store.WithinTx(ctx, func(tx ledger.Tx) error {
		_, err := Credit(ctx, tx, "dave", asset.New(asset.MaxAmount, xdl), "dave")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
)

// PostgresStore persists ledger records in PostgreSQL. Rows read inside a
// transaction are locked with FOR UPDATE so concurrent settlements of the same
// account serialize.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithinTx runs fn inside a single database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBalance(ctx context.Context, owner, code string) (Balance, error) {
	const query = `SELECT symbol_precision, amount, last_settlement_day, payer
        FROM balances WHERE owner = $1 AND symbol = $2 FOR UPDATE`
	var (
		prec   int16
		amount int64
		day    int64
		b      Balance
	)
	if err := t.tx.QueryRow(ctx, query, owner, code).Scan(&prec, &amount, &day, &b.Payer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrNoBalanceRecord
		}
		return Balance{}, err
	}
	b.Owner = owner
	b.Balance = asset.New(amount, asset.Symbol{Code: code, Precision: uint8(prec)})
	b.LastSettlementDay = calendar.Day(day)
	return b, nil
}

func (t *pgTx) InsertBalance(ctx context.Context, b Balance) error {
	cmd, err := t.tx.Exec(ctx, `INSERT INTO balances (owner, symbol, symbol_precision, amount, last_settlement_day, payer)
        VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (owner, symbol) DO NOTHING`,
		b.Owner, b.Balance.Symbol.Code, int16(b.Balance.Symbol.Precision), b.Balance.Amount, int64(b.LastSettlementDay), b.Payer)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: balance %s/%s exists", ErrConflict, b.Owner, b.Balance.Symbol.Code)
	}
	return nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, b Balance) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE balances SET amount = $1, last_settlement_day = $2
        WHERE owner = $3 AND symbol = $4`,
		b.Balance.Amount, int64(b.LastSettlementDay), b.Owner, b.Balance.Symbol.Code)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoBalanceRecord
	}
	return nil
}

func (t *pgTx) DeleteBalance(ctx context.Context, owner, code string) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM balances WHERE owner = $1 AND symbol = $2`, owner, code)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoBalanceRecord
	}
	return nil
}

func (t *pgTx) GetStats(ctx context.Context, code string) (Stats, error) {
	const query = `SELECT symbol_precision, supply, max_supply, issuer, burned, claims, version
        FROM currency_stats WHERE symbol = $1 FOR UPDATE`
	var (
		prec                     int16
		supply, maxSupply, burnt int64
		claims, version          int64
		st                       Stats
	)
	if err := t.tx.QueryRow(ctx, query, code).Scan(&prec, &supply, &maxSupply, &st.Issuer, &burnt, &claims, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stats{}, fmt.Errorf("%w: token with symbol %s does not exist", ErrNotFound, code)
		}
		return Stats{}, err
	}
	sym := asset.Symbol{Code: code, Precision: uint8(prec)}
	st.Supply = asset.New(supply, sym)
	st.MaxSupply = asset.New(maxSupply, sym)
	st.Burned = asset.New(burnt, sym)
	st.Claims = uint64(claims)
	st.Version = uint64(version)
	return st, nil
}

func (t *pgTx) InsertStats(ctx context.Context, st Stats) error {
	sym := st.Symbol()
	cmd, err := t.tx.Exec(ctx, `INSERT INTO currency_stats (symbol, symbol_precision, supply, max_supply, issuer, burned, claims, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 1) ON CONFLICT (symbol) DO NOTHING`,
		sym.Code, int16(sym.Precision), st.Supply.Amount, st.MaxSupply.Amount, st.Issuer, st.Burned.Amount, int64(st.Claims))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: token with symbol %s already exists", ErrConflict, sym.Code)
	}
	return nil
}

func (t *pgTx) UpdateStats(ctx context.Context, st Stats) (Stats, error) {
	code := st.Symbol().Code
	cmd, err := t.tx.Exec(ctx, `UPDATE currency_stats SET supply = $1, burned = $2, claims = $3, version = version + 1
        WHERE symbol = $4 AND version = $5`,
		st.Supply.Amount, st.Burned.Amount, int64(st.Claims), code, int64(st.Version))
	if err != nil {
		return Stats{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Stats{}, fmt.Errorf("%w: stats for %s changed (have version %d)", ErrConflict, code, st.Version)
	}
	st.Version++
	return st, nil
}

// ListShares orders by bytes, not by the database locale; the last share
// absorbs the rounding remainder, so every store must agree on the order.
func (t *pgTx) ListShares(ctx context.Context, owner string) ([]Share, error) {
	rows, err := t.tx.Query(ctx, `SELECT beneficiary, percent FROM shares WHERE owner = $1 ORDER BY beneficiary COLLATE "C" ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var (
			to  string
			pct int16
		)
		if err := rows.Scan(&to, &pct); err != nil {
			return nil, err
		}
		out = append(out, Share{Owner: owner, Beneficiary: to, Percent: uint8(pct)})
	}
	return out, rows.Err()
}

func (t *pgTx) PutShare(ctx context.Context, sh Share) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shares (owner, beneficiary, percent) VALUES ($1, $2, $3)
        ON CONFLICT (owner, beneficiary) DO UPDATE SET percent = EXCLUDED.percent`,
		sh.Owner, sh.Beneficiary, int16(sh.Percent))
	return err
}

func (t *pgTx) DeleteShare(ctx context.Context, owner, beneficiary string) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM shares WHERE owner = $1 AND beneficiary = $2`, owner, beneficiary)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: share %s->%s", ErrNotFound, owner, beneficiary)
	}
	return nil
}

func (t *pgTx) DeleteShares(ctx context.Context, owner string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM shares WHERE owner = $1`, owner)
	return err
}

func (t *pgTx) GetProfile(ctx context.Context, owner string) (Profile, error) {
	p := Profile{Owner: owner}
	if err := t.tx.QueryRow(ctx, `SELECT profile FROM profiles WHERE owner = $1`, owner).Scan(&p.Profile); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
		}
		return Profile{}, err
	}
	return p, nil
}

func (t *pgTx) PutProfile(ctx context.Context, p Profile) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO profiles (owner, profile) VALUES ($1, $2)
        ON CONFLICT (owner) DO UPDATE SET profile = EXCLUDED.profile`, p.Owner, p.Profile)
	return err
}

func (t *pgTx) DeleteProfile(ctx context.Context, owner string) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM profiles WHERE owner = $1`, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
	}
	return nil
}

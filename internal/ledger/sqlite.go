package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
)

// SQLiteStore persists ledger records in an embedded SQLite database. The
// caller should open the database with a single connection; SQLite then
// serializes writers for us.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a store over an already migrated SQLite database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// WithinTx runs fn inside a single database transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetBalance(ctx context.Context, owner, code string) (Balance, error) {
	var (
		prec   int64
		amount int64
		day    int64
		b      Balance
	)
	err := t.tx.QueryRowContext(ctx, `SELECT symbol_precision, amount, last_settlement_day, payer
        FROM balances WHERE owner = ? AND symbol = ?`, owner, code).Scan(&prec, &amount, &day, &b.Payer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNoBalanceRecord
		}
		return Balance{}, err
	}
	b.Owner = owner
	b.Balance = asset.New(amount, asset.Symbol{Code: code, Precision: uint8(prec)})
	b.LastSettlementDay = calendar.Day(day)
	return b, nil
}

func (t *sqliteTx) InsertBalance(ctx context.Context, b Balance) error {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO balances (owner, symbol, symbol_precision, amount, last_settlement_day, payer)
        VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (owner, symbol) DO NOTHING`,
		b.Owner, b.Balance.Symbol.Code, int64(b.Balance.Symbol.Precision), b.Balance.Amount, int64(b.LastSettlementDay), b.Payer)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: balance %s/%s exists", ErrConflict, b.Owner, b.Balance.Symbol.Code)
	}
	return nil
}

func (t *sqliteTx) UpdateBalance(ctx context.Context, b Balance) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE balances SET amount = ?, last_settlement_day = ?
        WHERE owner = ? AND symbol = ?`,
		b.Balance.Amount, int64(b.LastSettlementDay), b.Owner, b.Balance.Symbol.Code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoBalanceRecord
	}
	return nil
}

func (t *sqliteTx) DeleteBalance(ctx context.Context, owner, code string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM balances WHERE owner = ? AND symbol = ?`, owner, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoBalanceRecord
	}
	return nil
}

func (t *sqliteTx) GetStats(ctx context.Context, code string) (Stats, error) {
	var (
		prec                     int64
		supply, maxSupply, burnt int64
		claims, version          int64
		st                       Stats
	)
	err := t.tx.QueryRowContext(ctx, `SELECT symbol_precision, supply, max_supply, issuer, burned, claims, version
        FROM currency_stats WHERE symbol = ?`, code).Scan(&prec, &supply, &maxSupply, &st.Issuer, &burnt, &claims, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (t *sqliteTx) InsertStats(ctx context.Context, st Stats) error {
	sym := st.Symbol()
	res, err := t.tx.ExecContext(ctx, `INSERT INTO currency_stats (symbol, symbol_precision, supply, max_supply, issuer, burned, claims, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, 1) ON CONFLICT (symbol) DO NOTHING`,
		sym.Code, int64(sym.Precision), st.Supply.Amount, st.MaxSupply.Amount, st.Issuer, st.Burned.Amount, int64(st.Claims))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: token with symbol %s already exists", ErrConflict, sym.Code)
	}
	return nil
}

func (t *sqliteTx) UpdateStats(ctx context.Context, st Stats) (Stats, error) {
	code := st.Symbol().Code
	res, err := t.tx.ExecContext(ctx, `UPDATE currency_stats SET supply = ?, burned = ?, claims = ?, version = version + 1
        WHERE symbol = ? AND version = ?`,
		st.Supply.Amount, st.Burned.Amount, int64(st.Claims), code, int64(st.Version))
	if err != nil {
		return Stats{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Stats{}, fmt.Errorf("%w: stats for %s changed (have version %d)", ErrConflict, code, st.Version)
	}
	st.Version++
	return st, nil
}

func (t *sqliteTx) ListShares(ctx context.Context, owner string) ([]Share, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT beneficiary, percent FROM shares WHERE owner = ? ORDER BY beneficiary COLLATE BINARY ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var (
			to  string
			pct int64
		)
		if err := rows.Scan(&to, &pct); err != nil {
			return nil, err
		}
		out = append(out, Share{Owner: owner, Beneficiary: to, Percent: uint8(pct)})
	}
	return out, rows.Err()
}

func (t *sqliteTx) PutShare(ctx context.Context, sh Share) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO shares (owner, beneficiary, percent) VALUES (?, ?, ?)
        ON CONFLICT (owner, beneficiary) DO UPDATE SET percent = excluded.percent`,
		sh.Owner, sh.Beneficiary, int64(sh.Percent))
	return err
}

func (t *sqliteTx) DeleteShare(ctx context.Context, owner, beneficiary string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM shares WHERE owner = ? AND beneficiary = ?`, owner, beneficiary)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: share %s->%s", ErrNotFound, owner, beneficiary)
	}
	return nil
}

func (t *sqliteTx) DeleteShares(ctx context.Context, owner string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM shares WHERE owner = ?`, owner)
	return err
}

func (t *sqliteTx) GetProfile(ctx context.Context, owner string) (Profile, error) {
	p := Profile{Owner: owner}
	if err := t.tx.QueryRowContext(ctx, `SELECT profile FROM profiles WHERE owner = ?`, owner).Scan(&p.Profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
		}
		return Profile{}, err
	}
	return p, nil
}

func (t *sqliteTx) PutProfile(ctx context.Context, p Profile) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO profiles (owner, profile) VALUES (?, ?)
        ON CONFLICT (owner) DO UPDATE SET profile = excluded.profile`, p.Owner, p.Profile)
	return err
}

func (t *sqliteTx) DeleteProfile(ctx context.Context, owner string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM profiles WHERE owner = ?`, owner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: profile for %s", ErrNotFound, owner)
	}
	return nil
}

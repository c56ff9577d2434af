package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	FindByName(ctx context.Context, name string) (Account, error)
	UpdateTokenVersion(ctx context.Context, name string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	cmd, err := r.db.Exec(ctx, `INSERT INTO accounts (name, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`, acct.Name, acct.PINHash, acct.TokenVersion, acct.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

// FindByName fetches an account by name.
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT name, pin_hash, token_version, created_at FROM accounts WHERE name = $1`, name)
	var acct Account
	if err := row.Scan(&acct.Name, &acct.PINHash, &acct.TokenVersion, &acct.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return acct, nil
}

// UpdateTokenVersion stores the account's current token version.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, name string, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET token_version = $1 WHERE name = $2`, version, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SQLRepository implements Repository over database/sql. The operator CLI uses
// it with the embedded SQLite database.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository builds a database/sql backed identity repository.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts a new account.
func (r *SQLRepository) Create(ctx context.Context, acct Account) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO accounts (name, pin_hash, token_version, created_at)
        VALUES (?, ?, ?, ?) ON CONFLICT (name) DO NOTHING`, acct.Name, acct.PINHash, acct.TokenVersion, acct.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountExists
	}
	return nil
}

// FindByName fetches an account by name.
func (r *SQLRepository) FindByName(ctx context.Context, name string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT name, pin_hash, token_version, created_at FROM accounts WHERE name = ?`, name)
	var (
		acct      Account
		createdAt time.Time
	)
	if err := row.Scan(&acct.Name, &acct.PINHash, &acct.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

// UpdateTokenVersion stores the account's current token version.
func (r *SQLRepository) UpdateTokenVersion(ctx context.Context, name string, version int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET token_version = ? WHERE name = ?`, version, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

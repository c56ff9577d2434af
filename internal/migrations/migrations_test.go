package migrations

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func TestUpSQLiteCreatesSchema(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := Up(ctx, db, SQLite); err != nil {
		t.Fatalf("up: %v", err)
	}
	// Re-running is a no-op.
	if err := Up(ctx, db, SQLite); err != nil {
		t.Fatalf("second up: %v", err)
	}

	for _, table := range []string{"currency_stats", "balances", "shares", "profiles", "accounts"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestUpPostgresUsesPostgresDir(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	if err := Up(context.Background(), nil, Postgres); err != nil {
		t.Fatalf("up: %v", err)
	}
	if gotDir != "postgres" {
		t.Fatalf("expected postgres dir, got %q", gotDir)
	}
}

func TestPostgresSharesUseByteCollation(t *testing.T) {
	schema, err := files.ReadFile("postgres/00001_ledger.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if !strings.Contains(string(schema), `beneficiary TEXT COLLATE "C" NOT NULL`) {
		t.Fatal(`shares.beneficiary must use the "C" collation`)
	}
}

func TestUpPropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }
	if err := Up(context.Background(), nil, Postgres); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestUpRejectsUnknownDialect(t *testing.T) {
	if err := Up(context.Background(), nil, Dialect("oracle")); err == nil {
		t.Fatal("expected error")
	}
}

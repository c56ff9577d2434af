// Package cli implements ubictl, an operator tool that runs ledger operations
// against a local SQLite ledger.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/auth"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/config"
	"github.com/dailycoin/ubi-ledger/internal/events"
	"github.com/dailycoin/ubi-ledger/internal/identity"
	"github.com/dailycoin/ubi-ledger/internal/infra"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
	"github.com/dailycoin/ubi-ledger/internal/logging"
	"github.com/dailycoin/ubi-ledger/internal/token"
	"github.com/dailycoin/ubi-ledger/internal/ubi"
)

// Set via -ldflags at build time.
var Version = "dev"

// options are the persistent flags shared by every command.
type options struct {
	dbPath  string
	actor   string
	day     uint32
	verbose bool
}

// session is one opened ledger.
type session struct {
	db       *sql.DB
	tokens   *token.Service
	accounts *identity.Service
	symbol   asset.Symbol
	ctx      context.Context
}

func (s *session) Close() error {
	return s.db.Close()
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the ubictl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "ubictl",
		Short:         "Operate a UBI token ledger",
		Long:          "ubictl creates currencies, issues and moves tokens, and settles daily income with demurrage on a local SQLite ledger.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite ledger path (default ~/.ubictl/ledger.db)")
	root.PersistentFlags().StringVar(&opts.actor, "actor", "", "account acting on the ledger; empty runs with operator authority")
	root.PersistentFlags().Uint32Var(&opts.day, "day", 0, "settle as of this day number instead of today")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log ledger events to stderr")

	root.AddCommand(
		migrateCmd(opts),
		todayCmd(opts),
		dateCmd(),
		registerCmd(opts),
		createCmd(opts),
		issueCmd(opts),
		retireCmd(opts),
		transferCmd(opts),
		burnCmd(opts),
		claimCmd(opts),
		closeCmd(opts),
		shareCmd(opts),
		sharesCmd(opts),
		balanceCmd(opts),
		statsCmd(opts),
		profileCmd(opts),
	)
	return root
}

func (o *options) clock() calendar.Clock {
	if o.day > 0 {
		return calendar.FixedClock(o.day)
	}
	return calendar.SystemClock{}
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return logging.Discard()
	}
	return logging.NewText(cmd.ErrOrStderr(), "info")
}

// open loads configuration, opens the SQLite ledger and wires the token
// service the same way the API does.
func (o *options) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	path := o.dbPath
	if path == "" {
		if path, err = infra.DefaultSQLitePath(); err != nil {
			return nil, err
		}
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := infra.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	decay, err := ubi.NewDecay(cfg.DemurrageAnnualRate)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("demurrage rate: %w", err)
	}
	engine := ubi.NewEngine(o.clock(), decay, ubi.Policy{
		UnitsPerDay:          asset.Unit,
		MaxPastClaimDays:     cfg.MaxPastClaimDays,
		SignupBonusCutoffDay: cfg.SignupBonusCutoffDay,
		MaxSignupBonusDays:   cfg.MaxSignupBonusDays,
	})

	var authz auth.Authorizer = auth.AllowAll{}
	if o.actor != "" {
		authz = auth.ActorAuthorizer{}
		ctx = auth.WithActor(ctx, o.actor)
	}

	logger := o.logger(cmd)
	accounts := identity.NewService(identity.NewSQLRepository(db))
	tokens := token.NewService(token.Deps{
		Store:      ledger.NewSQLiteStore(db),
		Engine:     engine,
		Authorizer: authz,
		Accounts:   accounts,
		Emitter:    events.NewLoggerEmitter(logger),
		Logger:     logger,
		Authority:  cfg.LedgerAuthority,
	})
	return &session{db: db, tokens: tokens, accounts: accounts, symbol: cfg.DefaultSymbol, ctx: ctx}, nil
}

// run opens a session around fn.
func (o *options) run(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

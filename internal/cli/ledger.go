package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/identity"
	"github.com/dailycoin/ubi-ledger/internal/infra"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
	"github.com/dailycoin/ubi-ledger/internal/ubi"
)

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.dbPath
			if path == "" {
				var err error
				if path, err = infra.DefaultSQLitePath(); err != nil {
					return err
				}
			}
			db, err := infra.OpenSQLite(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer db.Close()
			printf(cmd.OutOrStdout(), "ledger ready at %s\n", path)
			return nil
		},
	}
}

func todayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Print the current settlement day",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			day := opts.clock().Today()
			printf(cmd.OutOrStdout(), "%d %s\n", day, day)
		},
	}
}

func dateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "date <day>",
		Short: "Convert a day number to DD-MM-YYYY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid day %q", args[0])
			}
			printf(cmd.OutOrStdout(), "%s\n", calendar.Format(n))
			return nil
		},
	}
}

func registerCmd(opts *options) *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register an account name",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			acct, err := s.accounts.Register(s.ctx, identity.Credentials{Name: args[0], PIN: pin})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "registered %s\n", acct.Name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&pin, "pin", "", "PIN used to log in to the API")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "create <issuer> <max-supply>",
		Short:   "Create a currency",
		Example: "  ubictl create dailycoin 1000000000.0000 XDL",
		Args:    cobra.MinimumNArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			maxSupply, err := parseQuantity(args[1:])
			if err != nil {
				return err
			}
			st, err := s.tokens.Create(s.ctx, args[0], maxSupply)
			if err != nil {
				return err
			}
			printStats(cmd, st)
			return nil
		}),
	}
}

func issueCmd(opts *options) *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "issue <to> <quantity>",
		Short: "Mint new supply and send it to an account",
		Args:  cobra.MinimumNArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			qty, err := parseQuantity(args[1:])
			if err != nil {
				return err
			}
			st, err := s.tokens.Issue(s.ctx, args[0], qty, memo)
			if err != nil {
				return err
			}
			printStats(cmd, st)
			return nil
		}),
	}
	cmd.Flags().StringVar(&memo, "memo", "", "memo attached to the issue")
	return cmd
}

func retireCmd(opts *options) *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "retire <quantity>",
		Short: "Remove supply held by the issuer",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			qty, err := parseQuantity(args)
			if err != nil {
				return err
			}
			st, err := s.tokens.Retire(s.ctx, qty, memo)
			if err != nil {
				return err
			}
			printStats(cmd, st)
			return nil
		}),
	}
	cmd.Flags().StringVar(&memo, "memo", "", "memo attached to the retirement")
	return cmd
}

func transferCmd(opts *options) *cobra.Command {
	var memo string
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <quantity>",
		Short: "Move tokens between accounts",
		Args:  cobra.MinimumNArgs(3),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			qty, err := parseQuantity(args[2:])
			if err != nil {
				return err
			}
			res, err := s.tokens.Transfer(s.ctx, args[0], args[1], qty, memo)
			if err != nil {
				return err
			}
			printBalance(cmd, res.From)
			printBalance(cmd, res.To)
			return nil
		}),
	}
	cmd.Flags().StringVar(&memo, "memo", "", "memo attached to the transfer")
	return cmd
}

func burnCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "burn <owner> <quantity>",
		Short: "Destroy part of an account's balance",
		Args:  cobra.MinimumNArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			qty, err := parseQuantity(args[1:])
			if err != nil {
				return err
			}
			bal, err := s.tokens.Burn(s.ctx, args[0], qty)
			if err != nil {
				return err
			}
			printBalance(cmd, bal)
			return nil
		}),
	}
}

func claimCmd(opts *options) *cobra.Command {
	var (
		strict bool
		payer  string
		symbol string
	)
	cmd := &cobra.Command{
		Use:   "claim <owner>",
		Short: "Settle demurrage and pay the income due",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			sym, err := pickSymbol(s, symbol)
			if err != nil {
				return err
			}
			var res ubi.Settlement
			if payer != "" && payer != args[0] {
				res, err = s.tokens.ClaimFor(s.ctx, args[0], sym, payer)
			} else {
				res, err = s.tokens.Claim(s.ctx, args[0], sym, strict)
			}
			if err != nil {
				return err
			}
			printSettlement(cmd, res, sym)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when nothing is due")
	cmd.Flags().StringVar(&payer, "payer", "", "account paying for new balance records")
	cmd.Flags().StringVar(&symbol, "symbol", "", "currency as precision,CODE (default from DEFAULT_SYMBOL)")
	return cmd
}

func closeCmd(opts *options) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "close <owner>",
		Short: "Delete an empty balance record",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			sym, err := pickSymbol(s, symbol)
			if err != nil {
				return err
			}
			if err := s.tokens.Close(s.ctx, args[0], sym); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "closed %s %s\n", args[0], sym.Code)
			return nil
		}),
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "currency as precision,CODE (default from DEFAULT_SYMBOL)")
	return cmd
}

func shareCmd(opts *options) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "share <owner> [<to> <percent>]",
		Short: "Redirect a percentage of an account's income",
		Args: func(cmd *cobra.Command, args []string) error {
			if reset {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			if reset {
				if err := s.tokens.ResetShare(s.ctx, args[0]); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "shares of %s removed\n", args[0])
				return nil
			}
			pct, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%w: percent %q", ledger.ErrValidation, args[2])
			}
			list, err := s.tokens.SetShare(s.ctx, args[0], args[1], pct)
			if err != nil {
				return err
			}
			printShares(cmd, list)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "remove every share of the owner")
	return cmd
}

func sharesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shares <owner>",
		Short: "List an account's income shares",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			list, err := s.tokens.Shares(s.ctx, args[0])
			if err != nil {
				return err
			}
			printShares(cmd, list)
			return nil
		}),
	}
}

func balanceCmd(opts *options) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "balance <owner>",
		Short: "Show an account's stored balance",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			sym, err := pickSymbol(s, symbol)
			if err != nil {
				return err
			}
			bal, err := s.tokens.Balance(s.ctx, args[0], sym.Code)
			if err != nil {
				return err
			}
			printBalance(cmd, bal)
			return nil
		}),
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "currency as precision,CODE (default from DEFAULT_SYMBOL)")
	return cmd
}

func statsCmd(opts *options) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a currency's supply record",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session, _ []string) error {
			sym, err := pickSymbol(s, symbol)
			if err != nil {
				return err
			}
			st, err := s.tokens.Stats(s.ctx, sym.Code)
			if err != nil {
				return err
			}
			printStats(cmd, st)
			return nil
		}),
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "currency as precision,CODE (default from DEFAULT_SYMBOL)")
	return cmd
}

func profileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <owner> [text]",
		Short: "Show or set an account's profile; an empty text deletes it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: opts.run(func(cmd *cobra.Command, s *session, args []string) error {
			if len(args) == 2 {
				return s.tokens.SetProfile(s.ctx, args[0], args[1])
			}
			p, err := s.tokens.Profile(s.ctx, args[0])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", p.Profile)
			return nil
		}),
	}
}

// parseQuantity accepts "1.0000 XDL" as one argument or two.
func parseQuantity(args []string) (asset.Asset, error) {
	qty, err := asset.Parse(strings.Join(args, " "))
	if err != nil {
		return asset.Asset{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	return qty, nil
}

func pickSymbol(s *session, flag string) (asset.Symbol, error) {
	if flag == "" {
		return s.symbol, nil
	}
	sym, err := asset.ParseSymbol(flag)
	if err != nil {
		return asset.Symbol{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	return sym, nil
}

func printBalance(cmd *cobra.Command, b ledger.Balance) {
	settled := "never"
	if b.LastSettlementDay > 0 {
		settled = b.LastSettlementDay.String()
	}
	printf(cmd.OutOrStdout(), "%-12s %s (settled %s, payer %s)\n", b.Owner, b.Balance, settled, b.Payer)
}

func printStats(cmd *cobra.Command, st ledger.Stats) {
	printf(cmd.OutOrStdout(), "%s issuer=%s supply=%s max=%s burned=%s claims=%d\n",
		st.Symbol().Code, st.Issuer, st.Supply, st.MaxSupply, st.Burned, st.Claims)
}

func printShares(cmd *cobra.Command, list []ledger.Share) {
	if len(list) == 0 {
		printf(cmd.OutOrStdout(), "no shares\n")
		return
	}
	for _, sh := range list {
		printf(cmd.OutOrStdout(), "%-12s %d%%\n", sh.Beneficiary, sh.Percent)
	}
}

func printSettlement(cmd *cobra.Command, res ubi.Settlement, sym asset.Symbol) {
	w := cmd.OutOrStdout()
	if !res.Settled {
		printf(w, "%s already settled on %s\n", res.Owner, res.Today)
		printBalance(cmd, res.Balance)
		return
	}
	printf(w, "%s burned %s claimed %s", res.Owner, asset.New(res.Burned, sym), asset.New(res.Claimed, sym))
	if res.Claimed > 0 {
		printf(w, ", next on %s", calendar.Format(res.NextClaimDay))
	}
	if res.LostDays > 0 {
		printf(w, ", lost %d days of income", res.LostDays)
	}
	printf(w, "\n")
	for _, p := range res.Distribution.Portions {
		printf(w, "  -> %-12s %s (%d%%)\n", p.Beneficiary, asset.New(p.Amount, sym), p.Percent)
	}
	printBalance(cmd, res.Balance)
}

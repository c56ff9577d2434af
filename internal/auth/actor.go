package auth

import (
	"context"
	"fmt"

	"github.com/dailycoin/ubi-ledger/internal/ledger"
)

type actorKey struct{}

// WithActor returns a context carrying the account acting on the ledger.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

// ActorFrom returns the acting account stored in ctx.
func ActorFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(actorKey{}).(string)
	return name, ok && name != ""
}

// Authorizer decides whether the caller may act for an account.
type Authorizer interface {
	RequireAuthority(ctx context.Context, account string) error
}

// ActorAuthorizer grants authority over exactly the account stored in the
// context.
type ActorAuthorizer struct{}

// RequireAuthority fails with ledger.ErrUnauthorized unless the context actor
// is account.
func (ActorAuthorizer) RequireAuthority(ctx context.Context, account string) error {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return fmt.Errorf("%w of %s: no authenticated actor", ledger.ErrUnauthorized, account)
	}
	if actor != account {
		return fmt.Errorf("%w of %s", ledger.ErrUnauthorized, account)
	}
	return nil
}

// AllowAll grants every authority. The operator CLI uses it when no actor is
// given and tests use it to focus on ledger behaviour.
type AllowAll struct{}

// RequireAuthority always succeeds.
func (AllowAll) RequireAuthority(context.Context, string) error { return nil }

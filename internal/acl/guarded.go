package acl

import (
	"context"
	"errors"

	"github.com/MrWong99/chatroute/internal/resilience"
)

// guarded routes every call of the wrapped [Store] through a circuit
// breaker.
type guarded struct {
	next    Store
	breaker *resilience.Breaker
}

// WithBreaker wraps s so that a failing backend is short-circuited: once b
// opens, calls return [resilience.ErrOpen] at once instead of waiting for
// the backend. Callers treat that like any other lookup error, so a sender
// is simply not an env-admin while the store is unreachable.
func WithBreaker(s Store, b *resilience.Breaker) Store {
	if b == nil {
		return s
	}
	return &guarded{next: s, breaker: b}
}

func (g *guarded) IsOperator(ctx context.Context, userID string) (ok bool, err error) {
	err = g.breaker.Do(ctx, func(ctx context.Context) error {
		ok, err = g.next.IsOperator(ctx, userID)
		return err
	})
	return ok, err
}

func (g *guarded) Grant(ctx context.Context, userID, grantedBy string) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.Grant(ctx, userID, grantedBy)
	})
}

// Revoke passes ErrNotFound through without counting it as a backend
// failure.
func (g *guarded) Revoke(ctx context.Context, userID string) error {
	var notFound error
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		err := g.next.Revoke(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	})
	if notFound != nil {
		return notFound
	}
	return err
}

func (g *guarded) List(ctx context.Context) (ops []Operator, err error) {
	err = g.breaker.Do(ctx, func(ctx context.Context) error {
		ops, err = g.next.List(ctx)
		return err
	})
	return ops, err
}

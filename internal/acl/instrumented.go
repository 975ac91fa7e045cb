package acl

import (
	"context"
	"time"

	"github.com/MrWong99/chatroute/internal/observe"
)

// instrumented times every call of the wrapped [Store].
type instrumented struct {
	next    Store
	metrics *observe.Metrics
}

// WithMetrics wraps s so that each call is recorded into
// [observe.Metrics.ACLLookupDuration] labelled with the operation name.
func WithMetrics(s Store, m *observe.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, metrics: m}
}

func (i *instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	i.metrics.RecordACLLookup(ctx, op, time.Since(start).Seconds(), err)
}

func (i *instrumented) IsOperator(ctx context.Context, userID string) (bool, error) {
	start := time.Now()
	ok, err := i.next.IsOperator(ctx, userID)
	i.observe(ctx, "is_operator", start, err)
	return ok, err
}

func (i *instrumented) Grant(ctx context.Context, userID, grantedBy string) error {
	start := time.Now()
	err := i.next.Grant(ctx, userID, grantedBy)
	i.observe(ctx, "grant", start, err)
	return err
}

func (i *instrumented) Revoke(ctx context.Context, userID string) error {
	start := time.Now()
	err := i.next.Revoke(ctx, userID)
	i.observe(ctx, "revoke", start, err)
	return err
}

func (i *instrumented) List(ctx context.Context) ([]Operator, error) {
	start := time.Now()
	ops, err := i.next.List(ctx)
	i.observe(ctx, "list", start, err)
	return ops, err
}

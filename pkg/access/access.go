// Package access implements the three-tier permission gate applied to every
// route before it is considered for matching.
//
// The tiers form a hierarchy where higher privilege subsumes lower:
// environment admin ⊇ chat owner ⊇ chat admin. A route with no requirement
// is open to everybody.
package access

import (
	"context"
	"reflect"

	"github.com/MrWong99/chatroute/pkg/route"
)

// Capabilities answers the sender queries the gate needs. [route.Messenger]
// satisfies it.
type Capabilities interface {
	IsSenderAdmin(ctx context.Context) bool
	IsSenderOwner(ctx context.Context) bool
	IsSenderEnvAdmin(ctx context.Context) bool
}

// CanAccess reports whether a sender with caps may invoke a route guarded by
// req. The result equals
//
//	(!EnvAdmin || env) && (!Owner || owner || env) && (!Admin || admin || owner || env)
//
// but capability queries are issued lazily and only when a flag needs them.
func CanAccess(ctx context.Context, req route.Access, caps Capabilities) bool {
	if req.IsZero() {
		return true
	}

	if req.EnvAdmin {
		// Env-admin satisfies every other tier as well.
		return caps.IsSenderEnvAdmin(ctx)
	}

	if req.Owner {
		if caps.IsSenderOwner(ctx) {
			return true
		}
		return caps.IsSenderEnvAdmin(ctx)
	}

	// Only Admin is set.
	return caps.IsSenderAdmin(ctx) || caps.IsSenderOwner(ctx) || caps.IsSenderEnvAdmin(ctx)
}

// Cache memoises each capability answer of the wrapped [Capabilities] so that
// the underlying query runs at most once. Create one Cache per dispatch cycle.
// A Cache is not safe for concurrent use.
type Cache struct {
	caps Capabilities

	admin, owner, envAdmin tristate
}

type tristate uint8

const (
	unknown tristate = iota
	yes
	no
)

func (s *tristate) resolve(q func() bool) bool {
	switch *s {
	case yes:
		return true
	case no:
		return false
	}
	if q() {
		*s = yes
		return true
	}
	*s = no
	return false
}

// NewCache wraps caps.
func NewCache(caps Capabilities) *Cache {
	return &Cache{caps: caps}
}

// IsSenderAdmin implements [Capabilities].
func (c *Cache) IsSenderAdmin(ctx context.Context) bool {
	return c.admin.resolve(func() bool { return c.caps.IsSenderAdmin(ctx) })
}

// IsSenderOwner implements [Capabilities].
func (c *Cache) IsSenderOwner(ctx context.Context) bool {
	return c.owner.resolve(func() bool { return c.caps.IsSenderOwner(ctx) })
}

// IsSenderEnvAdmin implements [Capabilities].
func (c *Cache) IsSenderEnvAdmin(ctx context.Context) bool {
	return c.envAdmin.resolve(func() bool { return c.caps.IsSenderEnvAdmin(ctx) })
}

type cacheKey struct{}

// WithCache returns a copy of ctx carrying c. The dispatcher stores the
// cache of its cycle this way so hooks and handlers reuse the answers it
// already has.
func WithCache(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, cacheKey{}, c)
}

// CacheFor returns the [Cache] stored in ctx when it wraps caps, and a new
// one otherwise.
func CacheFor(ctx context.Context, caps Capabilities) *Cache {
	if c, ok := ctx.Value(cacheKey{}).(*Cache); ok && sameCaps(c.caps, caps) {
		return c
	}
	return NewCache(caps)
}

func sameCaps(a, b Capabilities) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

// Tier is the highest privilege tier a sender holds.
type Tier int

const (
	TierUser Tier = iota
	TierAdmin
	TierOwner
	TierEnvAdmin
)

// String returns the lower-case name of the tier.
func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierOwner:
		return "owner"
	case TierEnvAdmin:
		return "env-admin"
	default:
		return "user"
	}
}

// TierOf returns the highest tier caps holds, querying from the top down.
func TierOf(ctx context.Context, caps Capabilities) Tier {
	switch {
	case caps.IsSenderEnvAdmin(ctx):
		return TierEnvAdmin
	case caps.IsSenderOwner(ctx):
		return TierOwner
	case caps.IsSenderAdmin(ctx):
		return TierAdmin
	default:
		return TierUser
	}
}

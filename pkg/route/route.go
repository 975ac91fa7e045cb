// Package route defines the declared dispatch rules of chatroute: the
// [Route] value, the [Table] that holds them in registration order, and the
// [Messenger] capability contract a chat platform implements so that the
// dispatcher can read the inbound text and ask about the sender.
//
// Routes are declared explicitly through a [Builder] (or [NewTable]) at
// startup. A built Table is immutable and may be shared between goroutines
// without locking.
package route

import (
	"context"
)

const (
	// DefaultSeparator tokenises both aliases and incoming text.
	DefaultSeparator = " "

	// DefaultTemperature disables fuzzy matching for a route.
	DefaultTemperature = 100
)

// Phase identifies which matching phase resolved a dispatch cycle.
type Phase int

const (
	// PhaseNone means no phase resolved the cycle.
	PhaseNone Phase = iota

	// PhaseExact is the tokenised alias-prefix phase.
	PhaseExact

	// PhaseFuzzy is the edit-distance similarity phase.
	PhaseFuzzy
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseExact:
		return "exact"
	case PhaseFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Access holds the privilege flags of a route. A route is eligible only if
// every set flag is satisfied by the sender. Higher tiers subsume lower ones:
// env-admin ⊇ owner ⊇ admin.
type Access struct {
	Owner    bool
	Admin    bool
	EnvAdmin bool
}

// IsZero reports whether no privilege is required.
func (a Access) IsZero() bool {
	return !a.Owner && !a.Admin && !a.EnvAdmin
}

// Request is passed to a [Handler] when its route wins a dispatch cycle.
type Request struct {
	// Messenger is the per-message platform context.
	Messenger Messenger

	// Route is the winning route.
	Route *Route

	// Text is the inbound text the cycle worked on (callback data when the
	// platform supplied it, otherwise the sender text).
	Text string

	// Args is nil unless Route.ReturnData is set. Then Args[0] is the full
	// original text and Args[1:] are the normalised trailing tokens.
	Args []string

	// Phase is the phase that matched.
	Phase Phase

	// Similarity is the fuzzy score in percent. Zero for exact matches.
	Similarity float64
}

// Params returns the extracted trailing tokens (Args without the original
// text). It returns nil when the route does not return data.
func (r *Request) Params() []string {
	if len(r.Args) < 2 {
		return nil
	}
	return r.Args[1:]
}

// Handler is invoked when a route matches. Errors are returned to the caller
// of the dispatcher unchanged except for wrapping.
type Handler func(ctx context.Context, req *Request) error

// Route is one declared dispatch rule.
type Route struct {
	// Name labels the route in logs and metrics. Defaults to the first alias.
	Name string

	// Description is shown by help listings. Optional.
	Description string

	// Aliases are the literal phrases the route accepts, tried in order.
	Aliases []string

	// ReturnData passes the extracted trailing tokens to the handler.
	ReturnData bool

	// RequireData rejects an exact match that leaves no trailing tokens.
	RequireData bool

	// Separator tokenises the alias and the incoming text.
	Separator string

	// Temperature is the minimum fuzzy similarity in percent. 100 disables
	// fuzzy matching for this route.
	Temperature int

	// MatchBotName makes an "@name" suffix significant: it must equal the
	// bot name or the exact phase aborts. Ignored when ReturnData is set.
	MatchBotName bool

	// Access lists the privilege requirements.
	Access Access

	// Handler runs when the route wins.
	Handler Handler
}

// FuzzyEnabled reports whether the route takes part in the fuzzy phase.
func (r *Route) FuzzyEnabled() bool {
	return r.Temperature < 100 && !r.ReturnData && !r.RequireData
}

// ChecksBotName reports whether the exact matcher inspects an "@name" suffix
// for this route.
func (r *Route) ChecksBotName() bool {
	return r.MatchBotName && !r.ReturnData
}

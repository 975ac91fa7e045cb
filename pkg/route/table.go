package route

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/MrWong99/chatroute/pkg/textnorm"
)

var (
	// ErrNoRoutes is returned when a table is built without any route.
	ErrNoRoutes = errors.New("route: table has no routes")

	// ErrInvalidRoute is wrapped by every route validation failure.
	ErrInvalidRoute = errors.New("route: invalid route")
)

// Option configures a single route registered through [Builder.Handle].
type Option func(*Route)

// WithName sets the route label used in logs and metrics.
func WithName(name string) Option {
	return func(r *Route) { r.Name = name }
}

// WithDescription sets the help text of the route.
func WithDescription(desc string) Option {
	return func(r *Route) { r.Description = desc }
}

// WithReturnData passes trailing tokens to the handler.
func WithReturnData() Option {
	return func(r *Route) { r.ReturnData = true }
}

// WithRequireData rejects exact matches that carry no trailing tokens.
func WithRequireData() Option {
	return func(r *Route) { r.RequireData = true }
}

// WithSeparator overrides the token separator (default " ").
func WithSeparator(sep string) Option {
	return func(r *Route) { r.Separator = sep }
}

// WithTemperature sets the fuzzy similarity threshold in percent.
func WithTemperature(t int) Option {
	return func(r *Route) { r.Temperature = t }
}

// WithBotName makes an "@name" suffix on the command significant.
func WithBotName() Option {
	return func(r *Route) { r.MatchBotName = true }
}

// RequireOwner restricts the route to chat owners (or environment admins).
func RequireOwner() Option {
	return func(r *Route) { r.Access.Owner = true }
}

// RequireAdmin restricts the route to chat admins (or owners, or environment
// admins).
func RequireAdmin() Option {
	return func(r *Route) { r.Access.Admin = true }
}

// RequireEnvAdmin restricts the route to environment admins.
func RequireEnvAdmin() Option {
	return func(r *Route) { r.Access.EnvAdmin = true }
}

// Builder collects routes in registration order. The zero value is ready to
// use. A Builder is not safe for concurrent use.
type Builder struct {
	routes []Route
}

// Handle registers a route for aliases. Defaults are applied before opts:
// separator " ", temperature 100, name = first alias.
func (b *Builder) Handle(h Handler, aliases []string, opts ...Option) *Builder {
	r := Route{
		Aliases:     slices.Clone(aliases),
		Separator:   DefaultSeparator,
		Temperature: DefaultTemperature,
		Handler:     h,
	}
	if len(aliases) > 0 {
		r.Name = aliases[0]
	}
	for _, o := range opts {
		o(&r)
	}
	b.routes = append(b.routes, r)
	return b
}

// Add registers fully specified routes as-is. Zero separators and
// temperatures are not defaulted; use [Builder.Handle] for that.
func (b *Builder) Add(routes ...Route) *Builder {
	for _, r := range routes {
		r.Aliases = slices.Clone(r.Aliases)
		b.routes = append(b.routes, r)
	}
	return b
}

// Build validates the collected routes and returns an immutable [Table].
func (b *Builder) Build() (*Table, error) {
	return NewTable(b.routes...)
}

// Table is an ordered, immutable list of routes. Earlier routes win ties in
// both matching phases.
type Table struct {
	routes []Route
}

// NewTable validates routes and returns a [Table] holding copies of them.
// All validation failures are reported together.
func NewTable(routes ...Route) (*Table, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}

	var errs []error
	for i := range routes {
		if err := validate(&routes[i]); err != nil {
			errs = append(errs, fmt.Errorf("route %d (%s): %w", i, routes[i].Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	t := &Table{routes: make([]Route, len(routes))}
	for i, r := range routes {
		r.Aliases = slices.Clone(r.Aliases)
		t.routes[i] = r
	}
	return t, nil
}

// Len returns the number of routes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}

// Route returns a pointer to the i-th route. Callers must not modify it.
func (t *Table) Route(i int) *Route {
	return &t.routes[i]
}

// All iterates over the routes in registration order.
func (t *Table) All() iter.Seq2[int, *Route] {
	return func(yield func(int, *Route) bool) {
		if t == nil {
			return
		}
		for i := range t.routes {
			if !yield(i, &t.routes[i]) {
				return
			}
		}
	}
}

// Routes returns a copy of the routes in registration order.
func (t *Table) Routes() []Route {
	if t == nil {
		return nil
	}
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		r.Aliases = slices.Clone(r.Aliases)
		out[i] = r
	}
	return out
}

func validate(r *Route) error {
	var errs []error
	if r.Handler == nil {
		errs = append(errs, fmt.Errorf("%w: handler is nil", ErrInvalidRoute))
	}
	if len(r.Aliases) == 0 {
		errs = append(errs, fmt.Errorf("%w: no aliases", ErrInvalidRoute))
	}
	if r.Separator == "" {
		errs = append(errs, fmt.Errorf("%w: separator is empty", ErrInvalidRoute))
	} else {
		for j, a := range r.Aliases {
			if len(textnorm.Tokenize(a, r.Separator)) == 0 {
				errs = append(errs, fmt.Errorf("%w: alias %d (%q) has no matchable tokens", ErrInvalidRoute, j, a))
			}
		}
	}
	if r.Temperature < 0 || r.Temperature > 100 {
		errs = append(errs, fmt.Errorf("%w: temperature %d out of range [0, 100]", ErrInvalidRoute, r.Temperature))
	}
	return errors.Join(errs...)
}

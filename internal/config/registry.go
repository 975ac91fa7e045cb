package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/chatroute/pkg/route"
)

// ErrHandlerNotRegistered is returned when a route names a handler for which
// no factory has been registered.
var ErrHandlerNotRegistered = errors.New("config: handler not registered")

// HandlerFactory builds the handler of one declared route.
type HandlerFactory func(RouteConfig) (route.Handler, error)

// Registry maps handler names to their factories. It is safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFactory)}
}

// Register registers factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = factory
}

// Names returns the registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateHandler instantiates the handler for rc using the factory registered
// under rc.Handler. Returns [ErrHandlerNotRegistered] if there is none.
func (r *Registry) CreateHandler(rc RouteConfig) (route.Handler, error) {
	r.mu.RLock()
	factory, ok := r.handlers[rc.Handler]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandlerNotRegistered, rc.Handler)
	}
	return factory(rc)
}

// Route converts the declaration into a [route.Route] bound to h, applying
// the same defaults as [route.Builder.Handle].
func (rc RouteConfig) Route(h route.Handler) route.Route {
	r := route.Route{
		Name:         rc.Label(),
		Description:  rc.Description,
		Aliases:      slices.Clone(rc.Aliases),
		ReturnData:   rc.ReturnData,
		RequireData:  rc.RequireData,
		Separator:    rc.Separator,
		Temperature:  route.DefaultTemperature,
		MatchBotName: rc.MatchBotName,
		Access: route.Access{
			Owner:    rc.RequireOwner,
			Admin:    rc.RequireAdmin,
			EnvAdmin: rc.RequireEnvAdmin,
		},
		Handler: h,
	}
	if r.Separator == "" {
		r.Separator = route.DefaultSeparator
	}
	if rc.Temperature != nil {
		r.Temperature = *rc.Temperature
	}
	return r
}

// BuildTable creates every declared route's handler through reg and returns
// the validated route table. All failures are reported together.
func BuildTable(routes []RouteConfig, reg *Registry) (*route.Table, error) {
	var (
		errs []error
		rs   = make([]route.Route, 0, len(routes))
	)
	for i, rc := range routes {
		h, err := reg.CreateHandler(rc)
		if err != nil {
			errs = append(errs, fmt.Errorf("routes[%d] (%s): %w", i, rc.Label(), err))
			continue
		}
		rs = append(rs, rc.Route(h))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return route.NewTable(rs...)
}

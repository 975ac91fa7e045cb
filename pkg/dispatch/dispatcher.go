// Package dispatch runs the dispatch cycle: it takes the text of one inbound
// message, finds the route that handles it and invokes that route's handler.
//
// A cycle moves through fixed phases. The text is taken from the messenger
// (callback payload first, sender text second). The exact phase then tries
// every eligible route in declaration order; the first alias-prefix match
// wins. If nothing matched, or a route aborted the exact phase because the
// message addressed another bot, the fuzzy phase compares the whole text with
// every eligible fuzzy-enabled route. If that fails too, the no-match hook is
// called once.
//
// A [Dispatcher] holds no per-message state and is safe for concurrent use.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chatroute/pkg/access"
	"github.com/MrWong99/chatroute/pkg/match"
	"github.com/MrWong99/chatroute/pkg/route"
)

var (
	// ErrNoInput is returned by [Dispatcher.Dispatch] in strict mode when the
	// messenger supplied no text.
	ErrNoInput = errors.New("dispatch: no input text")

	// ErrHandlerPanic wraps a panic recovered from a route handler.
	ErrHandlerPanic = errors.New("dispatch: handler panicked")
)

// MismatchPolicy decides what a bot-name mismatch does to the exact phase.
type MismatchPolicy int

const (
	// AbortExactPhase stops the exact phase at the first route whose
	// bot-name check fails and continues with the fuzzy phase.
	AbortExactPhase MismatchPolicy = iota

	// SkipRoute ignores only the offending route and keeps scanning.
	SkipRoute
)

// String returns the config spelling of the policy.
func (p MismatchPolicy) String() string {
	if p == SkipRoute {
		return "skip"
	}
	return "abort"
}

// ParseMismatchPolicy parses "abort" or "skip". The empty string is "abort".
func ParseMismatchPolicy(s string) (MismatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return AbortExactPhase, nil
	case "skip":
		return SkipRoute, nil
	default:
		return 0, fmt.Errorf("dispatch: unknown bot-name mismatch policy %q", s)
	}
}

// NoMatchFunc is called once per cycle that no route resolved. m is nil when
// Dispatch was called with a nil messenger.
type NoMatchFunc func(ctx context.Context, m route.Messenger)

// Result describes how a cycle ended.
type Result struct {
	// Handled is true when a route matched and its handler was invoked, even
	// if the handler then failed.
	Handled bool

	// Phase is the phase that matched, or PhaseNone.
	Phase route.Phase

	// Route is the matched route, or nil.
	Route *route.Route

	// Args is what the handler received in Request.Args.
	Args []string

	// Similarity is the fuzzy score of a fuzzy match.
	Similarity float64

	// Aborted is true when a bot-name mismatch cut the exact phase short.
	Aborted bool

	// NoInput is true when the messenger supplied no text.
	NoInput bool
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithNoMatch sets the hook run when no route resolves a cycle. The default
// does nothing.
func WithNoMatch(fn NoMatchFunc) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.noMatch = fn
		}
	}
}

// WithBotNameMismatch sets the bot-name mismatch policy. The default is
// [AbortExactPhase].
func WithBotNameMismatch(p MismatchPolicy) Option {
	return func(d *Dispatcher) { d.mismatch = p }
}

// WithStrictInput makes Dispatch return [ErrNoInput] for messages without
// text instead of running the no-match hook.
func WithStrictInput() Option {
	return func(d *Dispatcher) { d.strict = true }
}

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMeterProvider sets the meter provider for dispatch metrics. The default
// is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *Dispatcher) { d.mp = mp }
}

// WithTracerProvider sets the tracer provider for dispatch spans. The default
// is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tp = tp }
}

// Dispatcher routes inbound messages to the handlers of a [route.Table].
type Dispatcher struct {
	table    *route.Table
	noMatch  NoMatchFunc
	mismatch MismatchPolicy
	strict   bool
	log      *slog.Logger

	mp      metric.MeterProvider
	tp      trace.TracerProvider
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates a Dispatcher for table. It returns [route.ErrNoRoutes] when the
// table is nil or empty.
func New(table *route.Table, opts ...Option) (*Dispatcher, error) {
	if table.Len() == 0 {
		return nil, route.ErrNoRoutes
	}

	d := &Dispatcher{
		table:   table,
		noMatch: func(context.Context, route.Messenger) {},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.mp == nil {
		d.mp = otel.GetMeterProvider()
	}
	if d.tp == nil {
		d.tp = otel.GetTracerProvider()
	}

	met, err := NewMetrics(d.mp)
	if err != nil {
		return nil, fmt.Errorf("dispatch: create metrics: %w", err)
	}
	d.metrics = met
	d.tracer = d.tp.Tracer(scopeName)
	return d, nil
}

// Table returns the route table the dispatcher was built with.
func (d *Dispatcher) Table() *route.Table {
	return d.table
}

// eligibility caches the permission gate verdict per route for one cycle.
type eligibility struct {
	caps    *access.Cache
	verdict []int8 // 0 unknown, 1 eligible, -1 not eligible
}

func (e *eligibility) ok(ctx context.Context, i int, r *route.Route) bool {
	switch e.verdict[i] {
	case 1:
		return true
	case -1:
		return false
	}
	if access.CanAccess(ctx, r.Access, e.caps) {
		e.verdict[i] = 1
		return true
	}
	e.verdict[i] = -1
	return false
}

// Dispatch runs one dispatch cycle for m.
//
// It returns a non-nil error only when the matched handler failed (wrapped,
// see [ErrHandlerPanic]) or, in strict mode, when m supplied no text
// ([ErrNoInput]). A message that no route handles is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, m route.Messenger) (res Result, err error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatch")
	defer func() {
		outcome := "unhandled"
		switch {
		case err != nil && res.NoInput:
			outcome = "no_input"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Handled:
			outcome = "handled"
		case res.NoInput:
			outcome = "no_input"
		}
		var routeName string
		if res.Route != nil {
			routeName = res.Route.Name
		}
		span.SetAttributes(
			attribute.String("chatroute.phase", res.Phase.String()),
			attribute.String("chatroute.route", routeName),
			attribute.String("chatroute.outcome", outcome),
			attribute.Bool("chatroute.aborted", res.Aborted),
		)
		span.End()
		d.metrics.recordCycle(ctx, time.Since(start).Seconds(), res.Phase.String(), routeName, outcome)
	}()

	var text string
	if m != nil {
		text = route.InputText(m)
	}
	if strings.TrimSpace(text) == "" {
		res.NoInput = true
		if d.strict {
			return res, ErrNoInput
		}
		d.log.Debug("dispatch: no input text")
		d.noMatch(ctx, m)
		return res, nil
	}

	elig := &eligibility{
		caps:    access.NewCache(m),
		verdict: make([]int8, d.table.Len()),
	}
	ctx = access.WithCache(ctx, elig.caps)
	botName := route.BotName(m)

exact:
	for i, r := range d.table.All() {
		if !elig.ok(ctx, i, r) {
			continue
		}
		em := match.Exact(r, text, botName)
		switch em.Outcome {
		case match.Matched:
			req := &route.Request{
				Messenger: m,
				Route:     r,
				Text:      text,
				Phase:     route.PhaseExact,
			}
			if r.ReturnData {
				req.Args = append([]string{text}, em.Params...)
			}
			return d.invoke(ctx, res, req)
		case match.Abort:
			d.metrics.BotNameAborts.Add(ctx, 1)
			if d.mismatch == SkipRoute {
				d.log.Debug("dispatch: route skipped, addressed to another bot", "route", r.Name)
				continue
			}
			res.Aborted = true
			span.AddEvent("exact phase aborted", trace.WithAttributes(attribute.String("chatroute.route", r.Name)))
			d.log.Debug("dispatch: exact phase aborted, addressed to another bot", "route", r.Name)
			break exact
		}
	}

	for i, r := range d.table.All() {
		if !r.FuzzyEnabled() || !elig.ok(ctx, i, r) {
			continue
		}
		if score, ok := match.Fuzzy(r, text); ok {
			return d.invoke(ctx, res, &route.Request{
				Messenger:  m,
				Route:      r,
				Text:       text,
				Phase:      route.PhaseFuzzy,
				Similarity: score,
			})
		}
	}

	d.log.Debug("dispatch: no route matched", "text_len", len(text), "aborted", res.Aborted)
	d.noMatch(ctx, m)
	return res, nil
}

func (d *Dispatcher) invoke(ctx context.Context, res Result, req *route.Request) (Result, error) {
	res.Handled = true
	res.Phase = req.Phase
	res.Route = req.Route
	res.Args = req.Args
	res.Similarity = req.Similarity

	d.log.Debug("dispatch: route matched",
		"route", req.Route.Name,
		"phase", req.Phase.String(),
		"similarity", req.Similarity,
	)

	if err := callHandler(ctx, req); err != nil {
		d.metrics.HandlerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("route", req.Route.Name)))
		d.log.Warn("dispatch: handler failed", "route", req.Route.Name, "err", err)
		return res, fmt.Errorf("dispatch: route %q: %w", req.Route.Name, err)
	}
	return res, nil
}

func callHandler(ctx context.Context, req *route.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return req.Route.Handler(ctx, req)
}

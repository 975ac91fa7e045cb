package route_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/chatroute/pkg/route"
)

func noop(context.Context, *route.Request) error { return nil }

func TestBuilder_Defaults(t *testing.T) {
	t.Parallel()

	var b route.Builder
	b.Handle(noop, []string{"/help", "помощь"})

	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}

	r := tbl.Route(0)
	if r.Name != "/help" {
		t.Errorf("Name = %q, want %q", r.Name, "/help")
	}
	if r.Separator != route.DefaultSeparator {
		t.Errorf("Separator = %q, want %q", r.Separator, route.DefaultSeparator)
	}
	if r.Temperature != route.DefaultTemperature {
		t.Errorf("Temperature = %d, want %d", r.Temperature, route.DefaultTemperature)
	}
	if r.FuzzyEnabled() {
		t.Error("FuzzyEnabled() = true for default temperature")
	}
	if !r.Access.IsZero() {
		t.Errorf("Access = %+v, want zero", r.Access)
	}
}

func TestBuilder_Options(t *testing.T) {
	t.Parallel()

	var b route.Builder
	b.Handle(noop, []string{"/ban"},
		route.WithName("ban"),
		route.WithDescription("Ban a user"),
		route.WithReturnData(),
		route.WithRequireData(),
		route.WithSeparator("_"),
		route.WithTemperature(70),
		route.WithBotName(),
		route.RequireOwner(),
		route.RequireAdmin(),
		route.RequireEnvAdmin(),
	)

	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := tbl.Route(0)

	want := route.Access{Owner: true, Admin: true, EnvAdmin: true}
	if r.Access != want {
		t.Errorf("Access = %+v, want %+v", r.Access, want)
	}
	if r.Name != "ban" || r.Description != "Ban a user" || r.Separator != "_" || r.Temperature != 70 {
		t.Errorf("unexpected route fields: %+v", r)
	}
	if !r.ReturnData || !r.RequireData || !r.MatchBotName {
		t.Errorf("flags not applied: %+v", r)
	}
	// Bot-name checks never apply to data-returning routes.
	if r.ChecksBotName() {
		t.Error("ChecksBotName() = true for a ReturnData route")
	}
	// Data routes never take part in the fuzzy phase.
	if r.FuzzyEnabled() {
		t.Error("FuzzyEnabled() = true for a data route")
	}
}

func TestNewTable_Empty(t *testing.T) {
	t.Parallel()

	if _, err := route.NewTable(); !errors.Is(err, route.ErrNoRoutes) {
		t.Errorf("NewTable() error = %v, want ErrNoRoutes", err)
	}

	var b route.Builder
	if _, err := b.Build(); !errors.Is(err, route.ErrNoRoutes) {
		t.Errorf("Build() error = %v, want ErrNoRoutes", err)
	}
}

func TestNewTable_Validation(t *testing.T) {
	t.Parallel()

	valid := route.Route{
		Aliases:     []string{"ping"},
		Separator:   " ",
		Temperature: 100,
		Handler:     noop,
	}

	tests := []struct {
		name    string
		mutate  func(r *route.Route)
		wantSub string
	}{
		{"nil handler", func(r *route.Route) { r.Handler = nil }, "handler is nil"},
		{"no aliases", func(r *route.Route) { r.Aliases = nil }, "no aliases"},
		{"blank alias", func(r *route.Route) { r.Aliases = []string{"ping", "   "} }, "alias 1"},
		{"alias without tokens", func(r *route.Route) { r.Aliases = []string{"!!!"} }, "no matchable tokens"},
		{"empty separator", func(r *route.Route) { r.Separator = "" }, "separator is empty"},
		{"temperature too high", func(r *route.Route) { r.Temperature = 101 }, "out of range"},
		{"negative temperature", func(r *route.Route) { r.Temperature = -1 }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := valid
			r.Aliases = slices.Clone(valid.Aliases)
			tt.mutate(&r)

			_, err := route.NewTable(r)
			if !errors.Is(err, route.ErrInvalidRoute) {
				t.Fatalf("NewTable error = %v, want ErrInvalidRoute", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestNewTable_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := route.NewTable(
		route.Route{Name: "first", Aliases: []string{"a"}, Separator: " "},
		route.Route{Name: "second", Aliases: []string{"b"}, Separator: " ", Temperature: 200, Handler: noop},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"route 0 (first)", "route 1 (second)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestTable_OrderAndImmutability(t *testing.T) {
	t.Parallel()

	aliases := []string{"one"}
	var b route.Builder
	b.Handle(noop, aliases).
		Handle(noop, []string{"two"}).
		Handle(noop, []string{"three"})

	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Mutating the caller's slice must not leak into the table.
	aliases[0] = "changed"

	var names []string
	for i, r := range tbl.All() {
		if r != tbl.Route(i) {
			t.Errorf("All() yielded route %d that differs from Route(%d)", i, i)
		}
		names = append(names, r.Aliases[0])
	}
	if want := []string{"one", "two", "three"}; !slices.Equal(names, want) {
		t.Errorf("iteration order = %v, want %v", names, want)
	}

	cp := tbl.Routes()
	cp[0].Aliases[0] = "mutated"
	if got := tbl.Route(0).Aliases[0]; got != "one" {
		t.Errorf("Routes() copy shares aliases with the table: %q", got)
	}
}

func TestTable_AllStopsEarly(t *testing.T) {
	t.Parallel()

	var b route.Builder
	b.Handle(noop, []string{"a"}).Handle(noop, []string{"b"})
	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n := 0
	for range tbl.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("visited %d routes, want 1", n)
	}
}

func TestNilTable(t *testing.T) {
	t.Parallel()

	var tbl *route.Table
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
	if tbl.Routes() != nil {
		t.Error("Routes() on nil table should be nil")
	}
	for range tbl.All() {
		t.Fatal("All() on nil table yielded a route")
	}
}

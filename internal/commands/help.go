package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/internal/observe"
	"github.com/MrWong99/chatroute/pkg/access"
	"github.com/MrWong99/chatroute/pkg/dispatch"
	"github.com/MrWong99/chatroute/pkg/match"
	"github.com/MrWong99/chatroute/pkg/route"
)

// DefaultSuggestScore is the minimum similarity a "did you mean" suggestion
// must reach.
const DefaultSuggestScore = 60

func (d Deps) helpFactory(rc config.RouteConfig) (route.Handler, error) {
	if d.Table == nil {
		return nil, fmt.Errorf("commands: route %s: help needs the route table", rc.Label())
	}
	title := rc.StringOption("title", "Commands")
	return func(ctx context.Context, req *route.Request) error {
		return replyList(ctx, req.Messenger, title, helpLines(ctx, d.Table(), req.Messenger))
	}, nil
}

// helpLines lists the routes m may use, one line each, in table order.
// Capabilities are queried at most once for the whole listing.
func helpLines(ctx context.Context, t *route.Table, m route.Messenger) []string {
	caps := access.CacheFor(ctx, m)
	var lines []string
	for _, r := range t.All() {
		if !access.CanAccess(ctx, r.Access, caps) {
			continue
		}
		line := "`" + r.Aliases[0] + "`"
		if len(r.Aliases) > 1 {
			line += " (also " + strings.Join(r.Aliases[1:], ", ") + ")"
		}
		if r.Description != "" {
			line += ": " + r.Description
		}
		lines = append(lines, line)
	}
	return lines
}

func whoamiFactory(config.RouteConfig) (route.Handler, error) {
	return func(ctx context.Context, req *route.Request) error {
		tier := access.TierOf(ctx, req.Messenger)
		who := "You"
		if s, err := sender(req.Messenger); err == nil {
			who = fmt.Sprintf("%s (%s)", s.SenderName(), s.SenderID())
		}
		return reply(ctx, req.Messenger, fmt.Sprintf("%s: privilege tier %s", who, tier))
	}, nil
}

// SuggestOnMiss returns a no-match hook that answers with the closest alias
// of a route the sender may use. Nothing is sent when no alias reaches
// minScore, so ordinary chatter stays unanswered. Capabilities come from the
// cache the dispatcher left in ctx, so the sender is not queried twice.
func SuggestOnMiss(table func() *route.Table, minScore float64) dispatch.NoMatchFunc {
	return func(ctx context.Context, m route.Messenger) {
		if m == nil {
			return
		}
		text := route.InputText(m)
		if strings.TrimSpace(text) == "" {
			return
		}

		caps := access.CacheFor(ctx, m)
		var aliases []string
		for _, r := range table().All() {
			if access.CanAccess(ctx, r.Access, caps) {
				aliases = append(aliases, r.Aliases...)
			}
		}

		best, _, ok := match.Suggest(aliases, text, minScore)
		if !ok {
			return
		}
		if err := reply(ctx, m, fmt.Sprintf("Unknown command. Did you mean `%s`?", best)); err != nil {
			observe.Logger(ctx).Warn("commands: suggestion reply failed", "err", err)
		}
	}
}

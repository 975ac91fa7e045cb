// Package commands implements the built-in route handlers that a route
// declared in the config file can name in its handler field.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/pkg/route"
)

var (
	// ErrCannotReply is returned when the messenger of a request has no way
	// to answer the sender.
	ErrCannotReply = errors.New("commands: messenger cannot reply")

	// ErrNoSender is returned by handlers that need the sender's identity
	// when the messenger does not expose it.
	ErrNoSender = errors.New("commands: messenger has no sender identity")
)

// Replier is implemented by messengers that can answer the sender.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// ListReplier is implemented by messengers with a richer rendering for
// titled lists. Messengers without it get the list as plain text.
type ListReplier interface {
	ReplyList(ctx context.Context, title string, lines []string) error
}

// Sender is implemented by messengers that know who sent the message.
type Sender interface {
	SenderID() string
	SenderName() string
}

// Deps are the collaborators of the built-in handlers.
type Deps struct {
	// Operators backs grant, revoke and operators. Those handlers fail to
	// build when it is nil.
	Operators acl.Store

	// Table returns the live route table for help. It is a func because the
	// table is replaced when the config file changes.
	Table func() *route.Table

	// Version is reported by ping.
	Version string
}

// Register adds every built-in handler factory to reg.
func Register(reg *config.Registry, deps Deps) {
	reg.Register("reply", replyFactory)
	reg.Register("ping", deps.pingFactory)
	reg.Register("echo", echoFactory)
	reg.Register("help", deps.helpFactory)
	reg.Register("whoami", whoamiFactory)
	reg.Register("grant", deps.grantFactory)
	reg.Register("revoke", deps.revokeFactory)
	reg.Register("operators", deps.operatorsFactory)
}

func reply(ctx context.Context, m route.Messenger, text string) error {
	r, ok := m.(Replier)
	if !ok {
		return ErrCannotReply
	}
	return r.Reply(ctx, text)
}

func replyList(ctx context.Context, m route.Messenger, title string, lines []string) error {
	if lr, ok := m.(ListReplier); ok {
		return lr.ReplyList(ctx, title, lines)
	}
	return reply(ctx, m, title+"\n"+strings.Join(lines, "\n"))
}

func sender(m route.Messenger) (Sender, error) {
	s, ok := m.(Sender)
	if !ok || s.SenderID() == "" {
		return nil, ErrNoSender
	}
	return s, nil
}

func replyFactory(rc config.RouteConfig) (route.Handler, error) {
	text := rc.StringOption("text", "")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("commands: route %s: reply needs options.text", rc.Label())
	}
	return func(ctx context.Context, req *route.Request) error {
		return reply(ctx, req.Messenger, text)
	}, nil
}

func (d Deps) pingFactory(rc config.RouteConfig) (route.Handler, error) {
	text := rc.StringOption("text", "pong")
	if d.Version != "" {
		text += " (chatroute " + d.Version + ")"
	}
	return func(ctx context.Context, req *route.Request) error {
		return reply(ctx, req.Messenger, text)
	}, nil
}

func echoFactory(rc config.RouteConfig) (route.Handler, error) {
	if !rc.ReturnData {
		return nil, fmt.Errorf("commands: route %s: echo needs return_data", rc.Label())
	}
	empty := rc.StringOption("empty", "Nothing to echo.")
	return func(ctx context.Context, req *route.Request) error {
		params := req.Params()
		if len(params) == 0 {
			return reply(ctx, req.Messenger, empty)
		}
		return reply(ctx, req.Messenger, strings.Join(params, " "))
	}, nil
}

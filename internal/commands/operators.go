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

// requireOperatorsStore rejects operator handlers on routes that anyone
// could reach or that lack a store to work on.
func (d Deps) requireOperatorsStore(rc config.RouteConfig) error {
	if d.Operators == nil {
		return fmt.Errorf("commands: route %s: %s needs an operators store", rc.Label(), rc.Handler)
	}
	if !rc.RequireEnvAdmin {
		return fmt.Errorf("commands: route %s: %s must set require_env_admin", rc.Label(), rc.Handler)
	}
	return nil
}

// target extracts the user ID argument of grant and revoke. Mentions such
// as <@123> have already been reduced to their digits by tokenization.
func target(req *route.Request) (string, bool) {
	params := req.Params()
	if len(params) != 1 || strings.TrimSpace(params[0]) == "" {
		return "", false
	}
	return params[0], true
}

func (d Deps) grantFactory(rc config.RouteConfig) (route.Handler, error) {
	if err := d.requireOperatorsStore(rc); err != nil {
		return nil, err
	}
	return func(ctx context.Context, req *route.Request) error {
		id, ok := target(req)
		if !ok {
			return reply(ctx, req.Messenger, "Usage: "+req.Route.Aliases[0]+" USER_ID")
		}
		s, err := sender(req.Messenger)
		if err != nil {
			return err
		}
		if err := d.Operators.Grant(ctx, id, s.SenderID()); err != nil {
			return fmt.Errorf("commands: grant: %w", err)
		}
		return reply(ctx, req.Messenger, fmt.Sprintf("%s is now an operator.", id))
	}, nil
}

func (d Deps) revokeFactory(rc config.RouteConfig) (route.Handler, error) {
	if err := d.requireOperatorsStore(rc); err != nil {
		return nil, err
	}
	return func(ctx context.Context, req *route.Request) error {
		id, ok := target(req)
		if !ok {
			return reply(ctx, req.Messenger, "Usage: "+req.Route.Aliases[0]+" USER_ID")
		}
		if s, err := sender(req.Messenger); err == nil && s.SenderID() == id {
			return reply(ctx, req.Messenger, "You cannot revoke yourself.")
		}
		err := d.Operators.Revoke(ctx, id)
		switch {
		case errors.Is(err, acl.ErrNotFound):
			return reply(ctx, req.Messenger, fmt.Sprintf("%s is not an operator.", id))
		case err != nil:
			return fmt.Errorf("commands: revoke: %w", err)
		}
		return reply(ctx, req.Messenger, fmt.Sprintf("%s is no longer an operator.", id))
	}, nil
}

func (d Deps) operatorsFactory(rc config.RouteConfig) (route.Handler, error) {
	if err := d.requireOperatorsStore(rc); err != nil {
		return nil, err
	}
	return func(ctx context.Context, req *route.Request) error {
		ops, err := d.Operators.List(ctx)
		if err != nil {
			return fmt.Errorf("commands: list operators: %w", err)
		}
		lines := make([]string, 0, len(ops))
		for _, op := range ops {
			lines = append(lines, fmt.Sprintf("%s (granted by %s, %s)",
				op.UserID, op.GrantedBy, op.GrantedAt.UTC().Format("2006-01-02")))
		}
		return replyList(ctx, req.Messenger, "Operators", lines)
	}, nil
}

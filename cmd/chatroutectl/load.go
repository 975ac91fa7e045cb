package main

import (
	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/app"
	"github.com/MrWong99/chatroute/internal/commands"
	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/pkg/dispatch"
	"github.com/MrWong99/chatroute/pkg/route"
)

// workspace is a config file turned into the objects the daemon would run.
type workspace struct {
	cfg        *config.Config
	operators  *acl.MemStore
	table      *route.Table
	dispatcher *dispatch.Dispatcher
}

// loadWorkspace reads path and builds the route table and dispatcher with
// the built-in handlers. Operators live in memory, seeded from the config,
// so a dry run never touches the real store.
func loadWorkspace(path string) (*workspace, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	w := &workspace{
		cfg:       cfg,
		operators: acl.NewMemStore(cfg.Discord.EnvAdminIDs...),
	}

	reg := config.NewRegistry()
	commands.Register(reg, commands.Deps{
		Operators: w.operators,
		Table:     func() *route.Table { return w.table },
		Version:   version,
	})
	w.table, err = config.BuildTable(cfg.Routes, reg)
	if err != nil {
		return nil, err
	}

	opts, err := app.DispatchOptions(cfg, func() *route.Table { return w.table })
	if err != nil {
		return nil, err
	}
	w.dispatcher, err = dispatch.New(w.table, opts...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// accessLabel names the lowest tier that may use a route.
func accessLabel(a route.Access) string {
	switch {
	case a.EnvAdmin:
		return "env-admin"
	case a.Owner:
		return "owner"
	case a.Admin:
		return "admin"
	default:
		return "everyone"
	}
}

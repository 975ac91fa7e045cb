// Package app wires the chatroute subsystems into a running daemon.
//
// The App owns the full lifecycle: New builds the operators store, the
// route table, the dispatcher, the Discord bot, the WebSocket chat gateway
// and the ops HTTP server; Run serves until the context is cancelled;
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithOperators,
// WithBotFactory, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/commands"
	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/internal/discord"
	"github.com/MrWong99/chatroute/internal/health"
	"github.com/MrWong99/chatroute/internal/observe"
	"github.com/MrWong99/chatroute/internal/resilience"
	"github.com/MrWong99/chatroute/internal/wschat"
	"github.com/MrWong99/chatroute/pkg/dispatch"
	"github.com/MrWong99/chatroute/pkg/route"
)

// readHeaderTimeout bounds request header reads on the ops server.
const readHeaderTimeout = 10 * time.Second

// Bot is the chat platform connection driven by the App.
type Bot interface {
	Run(ctx context.Context) error
	Close() error
	Connected() bool
}

// BotFactory creates the bot. d routes every inbound message; operators
// answers env-admin queries.
type BotFactory func(ctx context.Context, d discord.Dispatcher, operators acl.Store) (Bot, error)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Injected or built in New.
	operators      acl.Store
	botFactory     BotFactory
	metrics        *observe.Metrics
	metricsHandler http.Handler
	version        string

	registry   *config.Registry
	table      *route.Table
	dispatcher *dispatch.Dispatcher
	bot        Bot
	chat       *wschat.Gateway
	handler    http.Handler
	checkers   []health.Checker

	listenMu sync.Mutex
	addr     net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOperators injects an operators store instead of creating one from
// config. The config's env_admin_ids are still granted on it.
func WithOperators(s acl.Store) Option {
	return func(a *App) { a.operators = s }
}

// WithBotFactory replaces the Discord bot. A nil bot from the factory runs
// the App without a chat platform.
func WithBotFactory(f BotFactory) Option {
	return func(a *App) { a.botFactory = f }
}

// WithMetrics sets the application instruments. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVersion sets the version reported by the ping command.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It connects to the
// database and to Discord when they are configured.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initOperators(ctx); err != nil {
		return nil, fmt.Errorf("app: init operators: %w", err)
	}

	if err := a.initDispatcher(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}

	if err := a.initBot(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init bot: %w", err)
	}

	a.initChat()
	a.initHTTP()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initOperators sets up the operators store and grants the configured seed.
func (a *App) initOperators(ctx context.Context) error {
	seed := a.cfg.Discord.EnvAdminIDs

	if a.operators == nil {
		if dsn := a.cfg.ACL.PostgresDSN; dsn != "" {
			db, err := acl.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error {
				db.Close()
				return nil
			})
			a.checkers = append(a.checkers, health.Checker{Name: "operators", Check: db.Ping})
			a.operators = acl.WithBreaker(db, resilience.New(resilience.Config{
				Name:          "operators",
				MaxFailures:   a.cfg.ACL.BreakerFailures,
				OpenFor:       a.cfg.ACL.BreakerOpenFor,
				OnStateChange: a.recordBreaker,
			}))
			slog.Info("operators store connected", "backend", "postgres")
		} else {
			a.operators = acl.NewMemStore()
			slog.Info("operators store ready", "backend", "memory")
		}
	}
	a.operators = acl.WithMetrics(a.operators, a.metrics)

	return acl.ApplySeed(ctx, a.operators, seed, nil)
}

func (a *App) recordBreaker(name string, _, to resilience.State) {
	if a.metrics != nil {
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
}

// initDispatcher builds the route table from config and the dispatcher on
// top of it.
func (a *App) initDispatcher() error {
	a.registry = config.NewRegistry()
	commands.Register(a.registry, commands.Deps{
		Operators: a.operators,
		Table:     a.Table,
		Version:   a.version,
	})

	table, err := config.BuildTable(a.cfg.Routes, a.registry)
	if err != nil {
		return err
	}
	a.table = table

	opts, err := DispatchOptions(a.cfg, a.Table)
	if err != nil {
		return err
	}
	d, err := dispatch.New(table, opts...)
	if err != nil {
		return err
	}
	a.dispatcher = d

	a.checkers = append(a.checkers, health.Checker{Name: "routes", Check: func(context.Context) error {
		if a.table.Len() == 0 {
			return route.ErrNoRoutes
		}
		return nil
	}})

	slog.Info("route table built", "routes", table.Len(), "bot_name_mismatch", a.cfg.Dispatch.BotNameMismatch)
	return nil
}

// DispatchOptions translates the dispatch settings of cfg into dispatcher
// options. table feeds the did-you-mean hook when suggest_on_miss is set.
func DispatchOptions(cfg *config.Config, table func() *route.Table) ([]dispatch.Option, error) {
	policy, err := dispatch.ParseMismatchPolicy(string(cfg.Dispatch.BotNameMismatch))
	if err != nil {
		return nil, err
	}
	opts := []dispatch.Option{dispatch.WithBotNameMismatch(policy)}
	if cfg.Dispatch.StrictInput {
		opts = append(opts, dispatch.WithStrictInput())
	}
	if cfg.Discord.SuggestOnMiss {
		opts = append(opts, dispatch.WithNoMatch(commands.SuggestOnMiss(table, commands.DefaultSuggestScore)))
	}
	return opts, nil
}

// initBot connects the chat platform.
func (a *App) initBot(ctx context.Context) error {
	factory := a.botFactory
	if factory == nil {
		if a.cfg.Discord.Token == "" {
			slog.Warn("no discord token configured, running without a chat platform")
			return nil
		}
		factory = a.discordBot
	}

	bot, err := factory(ctx, a.dispatcher, a.operators)
	if err != nil {
		return err
	}
	if bot == nil {
		return nil
	}
	a.bot = bot
	a.closers = append([]func() error{bot.Close}, a.closers...)
	a.checkers = append(a.checkers, health.Ready("discord", bot.Connected))
	return nil
}

func (a *App) discordBot(ctx context.Context, d discord.Dispatcher, operators acl.Store) (Bot, error) {
	dc := a.cfg.Discord
	bot, err := discord.New(ctx, discord.Config{
		Token:        dc.Token,
		GuildID:      dc.GuildID,
		BotName:      dc.BotName,
		AdminRoleIDs: dc.AdminRoleIDs,
	}, d, operators, discord.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	slog.Info("discord bot connected", "guild_id", dc.GuildID)
	return bot, nil
}

// initChat creates the WebSocket chat gateway when it is enabled.
func (a *App) initChat() {
	cc := a.cfg.ChatGateway
	if !cc.Enabled {
		return
	}
	botName := cc.BotName
	if botName == "" {
		botName = a.cfg.Discord.BotName
	}
	a.chat = wschat.New(a.dispatcher, a.operators, wschat.Config{
		Token:          cc.Token,
		BotName:        botName,
		AllowedOrigins: cc.AllowedOrigins,
	}, wschat.WithMetrics(a.metrics))
	a.closers = append([]func() error{a.chat.Close}, a.closers...)
	slog.Info("chat gateway enabled", "path", a.chatPath(), "authenticated", cc.Token != "")
}

func (a *App) chatPath() string {
	if p := a.cfg.ChatGateway.Path; p != "" {
		return p
	}
	return "/chat"
}

// initHTTP assembles the ops endpoints.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	health.New(a.checkers...).Register(mux)
	paths := []string{"/healthz", "/readyz"}
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
		paths = append(paths, "/metrics")
	}
	if a.chat != nil {
		mux.Handle("GET "+a.chatPath(), a.chat)
		paths = append(paths, a.chatPath())
	}
	a.handler = observe.Middleware(a.metrics, paths...)(mux)
}

// Table returns the route table.
func (a *App) Table() *route.Table {
	return a.table
}

// Dispatcher returns the dispatcher all platforms feed.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Operators returns the operators store.
func (a *App) Operators() acl.Store {
	return a.operators
}

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr returns the address the ops server listens on, or nil before Run
// has bound it.
func (a *App) Addr() net.Addr {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	return a.addr
}

// ApplyConfig applies the hot-reloadable parts of a config change. The
// operator seed is granted and revoked on the store. Route and dispatch
// settings only take effect after a restart.
func (a *App) ApplyConfig(ctx context.Context, diff config.ConfigDiff) error {
	if diff.RoutesChanged {
		slog.Warn("app: route changes detected, restart to apply them")
	}
	if !diff.EnvAdminsChanged {
		return nil
	}
	if err := acl.ApplySeed(ctx, a.operators, diff.AddedEnvAdmins, diff.RemovedEnvAdmins); err != nil {
		return fmt.Errorf("app: apply operator seed: %w", err)
	}
	slog.Info("operator seed applied",
		"added", len(diff.AddedEnvAdmins),
		"removed", len(diff.RemovedEnvAdmins),
	)
	return nil
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves the bot and the ops HTTP server until ctx is cancelled or one
// of them fails. Cancellation is not an error.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.listenMu.Lock()
		a.addr = ln.Addr()
		a.listenMu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: bot: %w", err)
			}
			return nil
		})
	}

	if ln != nil {
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("ops server listening", "addr", ln.Addr().String())
	}

	slog.Info("app running", "routes", a.table.Len(), "bot", a.bot != nil)
	return g.Wait()
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

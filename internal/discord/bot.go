// Package discord connects the dispatcher to Discord. It owns the
// discordgo.Session lifecycle, turns guild and direct messages as well as
// pressed buttons into [route.Messenger] values and sends handler replies
// back.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/observe"
	"github.com/MrWong99/chatroute/pkg/dispatch"
	"github.com/MrWong99/chatroute/pkg/route"
)

// handleTimeout bounds one dispatch cycle started by a gateway event.
const handleTimeout = 30 * time.Second

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID restricts the bot to one guild. Empty serves every guild the
	// bot is in. Direct messages are always served.
	GuildID string

	// BotName is the name matched by "@name" suffixes. Empty uses the
	// account's username once the gateway is ready.
	BotName string

	// AdminRoleIDs are roles whose members count as chat admins.
	AdminRoleIDs []string
}

// Session is the part of *discordgo.Session the bot talks to. Tests
// substitute a fake from the mock package.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Dispatcher runs one dispatch cycle. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, m route.Messenger) (dispatch.Result, error)
}

// Option configures a [Bot].
type Option func(*Bot)

// WithMetrics sets the instruments messages and reply failures are recorded
// to. The default uses the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// Bot owns the Discord gateway connection and feeds every inbound message
// through the dispatcher.
type Bot struct {
	session    Session
	gateway    *discordgo.Session
	dispatcher Dispatcher
	operators  acl.Store
	perms      *PermissionChecker
	metrics    *observe.Metrics
	guildID    string

	mu      sync.RWMutex
	botName string
	owners  map[string]string

	connected atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot, registers its gateway handlers and connects to
// Discord.
func New(_ context.Context, cfg Config, d Dispatcher, operators acl.Store, opts ...Option) (*Bot, error) {
	gw, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	gw.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := newBot(gw, cfg, d, operators, opts...)
	b.gateway = gw

	gw.AddHandler(b.onReady)
	gw.AddHandler(b.onDisconnect)
	gw.AddHandler(b.onGuildCreate)
	gw.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		_, _ = b.HandleMessage(ctx, m.Message)
	})
	gw.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		_, _ = b.HandleInteraction(ctx, i.Interaction)
	})

	if err := gw.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// NewWithSession creates a Bot on an already connected session. No gateway
// handlers are registered; events are fed through [Bot.HandleMessage] and
// [Bot.HandleInteraction].
func NewWithSession(s Session, cfg Config, d Dispatcher, operators acl.Store, opts ...Option) *Bot {
	b := newBot(s, cfg, d, operators, opts...)
	b.connected.Store(true)
	return b
}

func newBot(s Session, cfg Config, d Dispatcher, operators acl.Store, opts ...Option) *Bot {
	b := &Bot{
		session:    s,
		dispatcher: d,
		operators:  operators,
		perms:      NewPermissionChecker(cfg.AdminRoleIDs...),
		guildID:    cfg.GuildID,
		botName:    cfg.BotName,
		owners:     make(map[string]string),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// BotName returns the name "@name" suffixes must carry.
func (b *Bot) BotName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.botName
}

// Connected reports whether the gateway session is up.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. It is safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.connected.Store(false)
		if b.gateway != nil {
			if err := b.gateway.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// HandleMessage dispatches one created message. Messages by bots, including
// this one, and messages from other guilds are ignored.
func (b *Bot) HandleMessage(ctx context.Context, msg *discordgo.Message) (dispatch.Result, error) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || !b.servesGuild(msg.GuildID) {
		return dispatch.Result{}, nil
	}

	m := &Message{
		bot:       b,
		text:      msg.Content,
		userID:    msg.Author.ID,
		userName:  msg.Author.Username,
		guildID:   msg.GuildID,
		channelID: msg.ChannelID,
		member:    msg.Member,
		reference: msg.Reference(),
	}
	return b.dispatch(ctx, "message", m)
}

// HandleInteraction dispatches a pressed message component. The component's
// custom ID becomes the callback payload. Other interaction types are
// ignored.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) (dispatch.Result, error) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent || !b.servesGuild(i.GuildID) {
		return dispatch.Result{}, nil
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil || user.Bot {
		return dispatch.Result{}, nil
	}

	m := &Message{
		bot:         b,
		callback:    i.MessageComponentData().CustomID,
		userID:      user.ID,
		userName:    user.Username,
		guildID:     i.GuildID,
		channelID:   i.ChannelID,
		member:      i.Member,
		interaction: i,
	}
	defer m.finish()
	return b.dispatch(ctx, "interaction", m)
}

func (b *Bot) dispatch(ctx context.Context, source string, m *Message) (dispatch.Result, error) {
	ctx, span := observe.StartSpan(ctx, "discord."+source,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("discord.guild_id", m.guildID),
			attribute.String("discord.channel_id", m.channelID),
		),
	)
	defer span.End()

	b.metrics.RecordMessage(ctx, source)

	res, err := b.dispatcher.Dispatch(ctx, m)
	if err != nil {
		span.RecordError(err)
		observe.Logger(ctx).Warn("discord: dispatch failed",
			"source", source,
			"user", m.userID,
			"channel", m.channelID,
			"err", err,
		)
	}
	return res, err
}

func (b *Bot) servesGuild(guildID string) bool {
	return b.guildID == "" || guildID == "" || guildID == b.guildID
}

// guildOwner returns the owner of guildID from the cache, asking Discord on
// a miss. Lookup failures yield "".
func (b *Bot) guildOwner(_ context.Context, guildID string) string {
	b.mu.RLock()
	owner, ok := b.owners[guildID]
	b.mu.RUnlock()
	if ok {
		return owner
	}

	g, err := b.session.Guild(guildID)
	if err != nil {
		slog.Warn("discord: guild lookup failed", "guild", guildID, "err", err)
		return ""
	}
	b.cacheOwner(g)
	return g.OwnerID
}

func (b *Bot) cacheOwner(g *discordgo.Guild) {
	if g == nil || g.ID == "" {
		return
	}
	b.mu.Lock()
	b.owners[g.ID] = g.OwnerID
	b.mu.Unlock()
}

func (b *Bot) isOperator(ctx context.Context, userID string) bool {
	if b.operators == nil || userID == "" {
		return false
	}
	ok, err := b.operators.IsOperator(ctx, userID)
	if err != nil {
		observe.Logger(ctx).Warn("discord: operator lookup failed", "user", userID, "err", err)
		return false
	}
	return ok
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.connected.Store(true)

	b.mu.Lock()
	if b.botName == "" && r.User != nil {
		b.botName = r.User.Username
	}
	name := b.botName
	for _, g := range r.Guilds {
		if g.OwnerID != "" {
			b.owners[g.ID] = g.OwnerID
		}
	}
	b.mu.Unlock()

	slog.Info("discord: connected", "bot_name", name, "guilds", len(r.Guilds))
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.connected.Store(false)
	slog.Warn("discord: gateway disconnected")
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	b.cacheOwner(g.Guild)
}

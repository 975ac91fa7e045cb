// Package config provides the configuration schema, loader, handler registry
// and file watcher for the chatroute bot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the chatroute server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown and empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BotNameMismatch selects what a message addressed to another bot does to
// the exact-match phase.
type BotNameMismatch string

const (
	// MismatchAbort stops the exact phase and falls through to fuzzy matching.
	MismatchAbort BotNameMismatch = "abort"

	// MismatchSkip skips only the offending route.
	MismatchSkip BotNameMismatch = "skip"
)

// IsValid reports whether m is a recognised policy.
func (m BotNameMismatch) IsValid() bool {
	return m == MismatchAbort || m == MismatchSkip
}

// Config is the root configuration structure for chatroute.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Discord     DiscordConfig     `yaml:"discord"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	ACL         ACLConfig         `yaml:"acl"`
	ChatGateway ChatGatewayConfig `yaml:"chat_gateway"`
	Routes      []RouteConfig     `yaml:"routes"`
}

// ServerConfig holds network and logging settings for the ops HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics endpoints
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr" env:"CHATROUTE_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"CHATROUTE_LOG_LEVEL"`
}

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	// Token is the bot token. Prefer CHATROUTE_DISCORD_TOKEN over the file.
	Token string `yaml:"token" env:"CHATROUTE_DISCORD_TOKEN"`

	// GuildID restricts the bot to one guild. Empty accepts every guild.
	GuildID string `yaml:"guild_id"`

	// BotName is the name users append as "@name" to address this bot.
	// Empty uses the session's own username.
	BotName string `yaml:"bot_name"`

	// AdminRoleIDs grant the admin tier. Members with the Administrator
	// permission are admins regardless.
	AdminRoleIDs []string `yaml:"admin_role_ids"`

	// EnvAdminIDs seed the operators store with user IDs.
	EnvAdminIDs []string `yaml:"env_admin_ids"`

	// SuggestOnMiss replies with a did-you-mean hint when nothing matched.
	SuggestOnMiss bool `yaml:"suggest_on_miss"`
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	// BotNameMismatch is "abort" (default) or "skip".
	BotNameMismatch BotNameMismatch `yaml:"bot_name_mismatch"`

	// StrictInput treats messages without text as errors instead of misses.
	StrictInput bool `yaml:"strict_input"`
}

// ACLConfig configures the operators store.
type ACLConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps operators in
	// memory for the process lifetime.
	PostgresDSN string `yaml:"postgres_dsn" env:"CHATROUTE_POSTGRES_DSN"`

	// BreakerFailures is the number of consecutive PostgreSQL failures after
	// which lookups fail fast. Zero selects the default of 5.
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerOpenFor is how long lookups fail fast before the database is
	// probed again (e.g., "30s"). Zero selects the default of 30s.
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// ChatGatewayConfig configures the WebSocket chat gateway on the ops server.
type ChatGatewayConfig struct {
	// Enabled mounts the gateway. It needs server.listen_addr.
	Enabled bool `yaml:"enabled"`

	// Path is the URL path of the gateway. Default: "/chat".
	Path string `yaml:"path"`

	// Token is the bearer token clients must present. Without a token
	// every client is anonymous to the permission gate: identities and
	// privilege claims from the handshake are ignored.
	Token string `yaml:"token" env:"CHATROUTE_CHAT_TOKEN"`

	// AllowedOrigins are host patterns accepted for cross-origin browser
	// clients, e.g. "chat.example.com".
	AllowedOrigins []string `yaml:"allowed_origins"`

	// BotName is the name clients append as "@name". Default: discord.bot_name.
	BotName string `yaml:"bot_name"`
}

// RouteConfig declares one route in YAML.
type RouteConfig struct {
	// Name labels the route. Defaults to the first alias.
	Name string `yaml:"name"`

	// Description is shown by the help command.
	Description string `yaml:"description"`

	// Handler is the registry name of the handler factory.
	Handler string `yaml:"handler"`

	// Aliases are the phrases the route accepts.
	Aliases []string `yaml:"aliases"`

	ReturnData  bool   `yaml:"return_data"`
	RequireData bool   `yaml:"require_data"`
	Separator   string `yaml:"separator"`

	// Temperature is the fuzzy threshold in percent. Nil means 100 (exact
	// only); an explicit 0 accepts any text.
	Temperature *int `yaml:"temperature"`

	MatchBotName    bool `yaml:"match_bot_name"`
	RequireOwner    bool `yaml:"require_owner"`
	RequireAdmin    bool `yaml:"require_admin"`
	RequireEnvAdmin bool `yaml:"require_env_admin"`

	// Options holds handler-specific settings.
	Options map[string]any `yaml:"options"`
}

// Label returns Name, or the first alias when Name is empty.
func (rc RouteConfig) Label() string {
	if rc.Name != "" {
		return rc.Name
	}
	if len(rc.Aliases) > 0 {
		return rc.Aliases[0]
	}
	return ""
}

// StringOption returns the string option key, or def if it is absent or not
// a string.
func (rc RouteConfig) StringOption(key, def string) string {
	if v, ok := rc.Options[key].(string); ok {
		return v
	}
	return def
}

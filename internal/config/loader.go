package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and ops settings in cfg from CHATROUTE_*
// environment variables. Unset variables leave the file values alone.
func ApplyEnv(cfg *Config) error {
	targets := []any{&cfg.Server, &cfg.Discord, &cfg.ACL, &cfg.ChatGateway}
	for _, t := range targets {
		if err := env.Parse(t); err != nil {
			return fmt.Errorf("config: parse env: %w", err)
		}
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Dispatch
	if cfg.Dispatch.BotNameMismatch != "" && !cfg.Dispatch.BotNameMismatch.IsValid() {
		errs = append(errs, fmt.Errorf("dispatch.bot_name_mismatch %q is invalid; valid values: abort, skip", cfg.Dispatch.BotNameMismatch))
	}

	// ACL
	if cfg.ACL.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("acl.breaker_failures %d must not be negative", cfg.ACL.BreakerFailures))
	}
	if cfg.ACL.BreakerOpenFor < 0 {
		errs = append(errs, fmt.Errorf("acl.breaker_open_for %v must not be negative", cfg.ACL.BreakerOpenFor))
	}

	// Chat gateway
	if cfg.ChatGateway.Enabled {
		if cfg.ChatGateway.Path != "" && !strings.HasPrefix(cfg.ChatGateway.Path, "/") {
			errs = append(errs, fmt.Errorf("chat_gateway.path %q must start with /", cfg.ChatGateway.Path))
		}
		if cfg.Server.ListenAddr == "" {
			errs = append(errs, errors.New("chat_gateway.enabled needs server.listen_addr"))
		}
		if cfg.ChatGateway.Token == "" {
			slog.Warn("chat_gateway.token is empty; gateway clients are anonymous (set CHATROUTE_CHAT_TOKEN)")
		}
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the bot will not connect (set CHATROUTE_DISCORD_TOKEN)")
	}
	for i, id := range cfg.Discord.EnvAdminIDs {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Errorf("discord.env_admin_ids[%d] is empty", i))
		}
	}

	// Routes
	if len(cfg.Routes) == 0 {
		errs = append(errs, errors.New("routes: at least one route is required"))
	}
	labels := make(map[string]int, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if rc.Handler == "" {
			errs = append(errs, fmt.Errorf("%s.handler is required", prefix))
		}
		if len(rc.Aliases) == 0 {
			errs = append(errs, fmt.Errorf("%s.aliases must not be empty", prefix))
		}
		if rc.Temperature != nil && (*rc.Temperature < 0 || *rc.Temperature > 100) {
			errs = append(errs, fmt.Errorf("%s.temperature %d is out of range [0, 100]", prefix, *rc.Temperature))
		}
		if rc.Temperature != nil && *rc.Temperature < 100 && (rc.ReturnData || rc.RequireData) {
			slog.Warn("route temperature has no effect on data routes; fuzzy matching is skipped",
				"route", rc.Label(),
			)
		}
		if label := rc.Label(); label != "" {
			if prev, ok := labels[label]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of routes[%d]", prefix, label, prev))
			}
			labels[label] = i
		}
	}

	return errors.Join(errs...)
}

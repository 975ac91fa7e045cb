package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/pkg/route"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a config file and build its route table",
		Long: `Validate loads the config file, applies CHATROUTE_* environment overrides,
creates every route handler and builds the route table.

The command fails when the daemon would refuse to start. Settings that are
legal but probably unintended are reported as warnings.`,
		Example: `  chatroutectl validate -c config.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := loadWorkspace(configPath)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), validateResult(w), outputFmt)
		},
	}
}

// ValidateResult is the result of the validate command.
type ValidateResult struct {
	Config   string   `json:"config" yaml:"config"`
	Valid    bool     `json:"valid" yaml:"valid"`
	Routes   int      `json:"routes" yaml:"routes"`
	Fuzzy    int      `json:"fuzzy" yaml:"fuzzy"`
	Handlers []string `json:"handlers" yaml:"handlers"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func validateResult(w *workspace) ValidateResult {
	res := ValidateResult{
		Config: configPath,
		Valid:  true,
		Routes: w.table.Len(),
	}
	for _, rc := range w.cfg.Routes {
		if !slices.Contains(res.Handlers, rc.Handler) {
			res.Handlers = append(res.Handlers, rc.Handler)
		}
	}
	slices.Sort(res.Handlers)

	var envAdminRoutes []string
	for _, r := range w.table.All() {
		if r.FuzzyEnabled() {
			res.Fuzzy++
		}
		if r.Access.EnvAdmin {
			envAdminRoutes = append(envAdminRoutes, r.Name)
		}
	}

	if w.cfg.Discord.Token == "" {
		res.Warnings = append(res.Warnings, "discord.token is empty; the bot will not connect")
	}
	if len(envAdminRoutes) > 0 && len(w.cfg.Discord.EnvAdminIDs) == 0 && w.cfg.ACL.PostgresDSN == "" {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"routes %v require env-admin but no env_admin_ids are configured and the operators store is in memory",
			envAdminRoutes))
	}
	if w.cfg.Discord.BotName == "" {
		for _, r := range w.table.All() {
			if r.ChecksBotName() {
				res.Warnings = append(res.Warnings, "discord.bot_name is empty; match_bot_name routes use the Discord username")
				break
			}
		}
	}
	if w.cfg.Dispatch.BotNameMismatch != config.MismatchSkip {
		res.Warnings = append(res.Warnings, shadowedDataRoutes(w.table)...)
	}
	return res
}

// shadowedDataRoutes reports data routes declared after a match_bot_name
// route. Under the abort policy an "@" in their arguments, such as a user
// mention, stops the exact phase before they are tried.
func shadowedDataRoutes(t *route.Table) []string {
	var (
		warnings []string
		checker  string
	)
	for _, r := range t.All() {
		if r.ChecksBotName() && checker == "" {
			checker = r.Name
			continue
		}
		if r.ReturnData && checker != "" {
			warnings = append(warnings, fmt.Sprintf(
				"route %s takes data but follows match_bot_name route %s; arguments containing \"@\" never reach it",
				r.Name, checker))
		}
	}
	return warnings
}

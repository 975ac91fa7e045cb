package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MrWong99/chatroute/pkg/route"
)

var (
	matchAdmin    bool
	matchOwner    bool
	matchEnvAdmin bool
	matchBotName  string
	matchCallback string
	matchUserID   string
	matchUserName string
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [text]",
		Short: "Dry-run a message through the dispatcher",
		Long: `Match dispatches one message through the route table built from the
config file and reports which route fired, in which phase, and what the
handler would have replied.

Handlers run against an in-memory operators store seeded from
discord.env_admin_ids, so grant and revoke never change real data.`,
		Example: `  chatroutectl match "/ping"
  chatroutectl match --bot-name routebot "/ping@otherbot"
  chatroutectl match --callback "/help" ""
  chatroutectl match --user 42 "/grant 1234"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMatch,
	}

	cmd.Flags().BoolVar(&matchAdmin, "admin", false, "Sender administers the chat")
	cmd.Flags().BoolVar(&matchOwner, "owner", false, "Sender owns the chat")
	cmd.Flags().BoolVar(&matchEnvAdmin, "env-admin", false, "Sender operates the bot (in addition to the operators store)")
	cmd.Flags().StringVar(&matchBotName, "bot-name", "", "Bot name for @name checks (default: discord.bot_name)")
	cmd.Flags().StringVar(&matchCallback, "callback", "", "Button payload, preferred over the text")
	cmd.Flags().StringVar(&matchUserID, "user", "cli", "Sender user ID")
	cmd.Flags().StringVar(&matchUserName, "user-name", "chatroutectl", "Sender display name")

	return cmd
}

// MatchResult is the result of the match command.
type MatchResult struct {
	Text       string   `json:"text" yaml:"text"`
	Handled    bool     `json:"handled" yaml:"handled"`
	Route      string   `json:"route,omitempty" yaml:"route,omitempty"`
	Phase      string   `json:"phase" yaml:"phase"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
	Similarity float64  `json:"similarity,omitempty" yaml:"similarity,omitempty"`
	Aborted    bool     `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	NoInput    bool     `json:"noInput,omitempty" yaml:"noInput,omitempty"`
	Replies    []string `json:"replies,omitempty" yaml:"replies,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	w, err := loadWorkspace(configPath)
	if err != nil {
		return err
	}

	var text string
	if len(args) == 1 {
		text = args[0]
	}
	botName := matchBotName
	if botName == "" {
		botName = w.cfg.Discord.BotName
	}

	m := &dryRun{
		text:     text,
		callback: matchCallback,
		botName:  botName,
		userID:   matchUserID,
		userName: matchUserName,
		admin:    matchAdmin,
		owner:    matchOwner,
		envAdmin: matchEnvAdmin,
		isOperator: func(ctx context.Context, id string) bool {
			ok, err := w.operators.IsOperator(ctx, id)
			return err == nil && ok
		},
	}

	res, err := w.dispatcher.Dispatch(cmd.Context(), m)
	out := MatchResult{
		Text:       route.InputText(m),
		Handled:    res.Handled,
		Phase:      res.Phase.String(),
		Args:       res.Args,
		Similarity: res.Similarity,
		Aborted:    res.Aborted,
		NoInput:    res.NoInput,
		Replies:    m.replies,
	}
	if res.Route != nil {
		out.Route = res.Route.Name
	}
	if err != nil {
		out.Error = err.Error()
	}
	return outputResult(cmd.OutOrStdout(), out, outputFmt)
}

// dryRun is the messenger of a match command. Replies are recorded instead
// of sent.
type dryRun struct {
	text       string
	callback   string
	botName    string
	userID     string
	userName   string
	admin      bool
	owner      bool
	envAdmin   bool
	isOperator func(ctx context.Context, id string) bool

	mu      sync.Mutex
	replies []string
}

func (m *dryRun) SenderText() string                 { return m.text }
func (m *dryRun) CallbackQueryData() string          { return m.callback }
func (m *dryRun) BotName() string                    { return m.botName }
func (m *dryRun) SenderID() string                   { return m.userID }
func (m *dryRun) SenderName() string                 { return m.userName }
func (m *dryRun) IsSenderAdmin(context.Context) bool { return m.admin }
func (m *dryRun) IsSenderOwner(context.Context) bool { return m.owner }

func (m *dryRun) IsSenderEnvAdmin(ctx context.Context) bool {
	return m.envAdmin || m.isOperator(ctx, m.userID)
}

func (m *dryRun) Reply(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, text)
	return nil
}

func (m *dryRun) ReplyList(ctx context.Context, title string, lines []string) error {
	return m.Reply(ctx, title+"\n"+strings.Join(lines, "\n"))
}

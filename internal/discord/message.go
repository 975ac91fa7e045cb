package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chatroute/pkg/route"
)

// Message is the [route.Messenger] of one inbound Discord message or pressed
// button. It is created per event and answers its capability queries
// lazily.
type Message struct {
	bot *Bot

	text      string
	callback  string
	userID    string
	userName  string
	guildID   string
	channelID string
	member    *discordgo.Member

	// Exactly one of reference and interaction is set.
	reference   *discordgo.MessageReference
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

var (
	_ route.Messenger       = (*Message)(nil)
	_ route.BotNamer        = (*Message)(nil)
	_ route.CallbackQuerier = (*Message)(nil)
)

// SenderText implements [route.Messenger].
func (m *Message) SenderText() string { return m.text }

// CallbackQueryData implements [route.CallbackQuerier]. It is the custom ID
// of the pressed button.
func (m *Message) CallbackQueryData() string { return m.callback }

// BotName implements [route.BotNamer].
func (m *Message) BotName() string { return m.bot.BotName() }

// IsSenderAdmin implements [route.Messenger].
func (m *Message) IsSenderAdmin(context.Context) bool {
	return m.bot.perms.IsAdmin(m.member)
}

// IsSenderOwner implements [route.Messenger]. Direct messages have no owner.
func (m *Message) IsSenderOwner(ctx context.Context) bool {
	if m.guildID == "" {
		return false
	}
	owner := m.bot.guildOwner(ctx, m.guildID)
	return owner != "" && owner == m.userID
}

// IsSenderEnvAdmin implements [route.Messenger].
func (m *Message) IsSenderEnvAdmin(ctx context.Context) bool {
	return m.bot.isOperator(ctx, m.userID)
}

// SenderID returns the Discord user ID of the sender.
func (m *Message) SenderID() string { return m.userID }

// SenderName returns the sender's username.
func (m *Message) SenderName() string { return m.userName }

// GuildID returns the guild the message was sent in, or "" for a DM.
func (m *Message) GuildID() string { return m.guildID }

// ChannelID returns the channel the message was sent in.
func (m *Message) ChannelID() string { return m.channelID }

// Reply sends text back to where the message came from. Content beyond
// Discord's message limit is cut.
func (m *Message) Reply(ctx context.Context, text string) error {
	return m.send(ctx, text, nil)
}

// ReplyList sends a titled list rendered as an embed.
func (m *Message) ReplyList(ctx context.Context, title string, lines []string) error {
	return m.send(ctx, "", listEmbed(title, lines))
}

func (m *Message) send(ctx context.Context, content string, embed *discordgo.MessageEmbed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		err  error
		kind string
	)
	if m.interaction != nil && !m.responded {
		kind = "interaction"
		err = m.bot.session.InteractionRespond(m.interaction, interactionMessage(content, embed))
		if err == nil {
			m.responded = true
		}
	} else {
		kind = "message"
		data := &discordgo.MessageSend{
			Reference:       m.reference,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if embed != nil {
			data.Embeds = []*discordgo.MessageEmbed{embed}
		} else {
			data.Content = truncate(content, maxMessageRunes)
		}
		_, err = m.bot.session.ChannelMessageSendComplex(m.channelID, data)
	}
	if err != nil {
		m.bot.metrics.RecordReplyError(ctx, kind)
		return fmt.Errorf("discord: reply: %w", err)
	}
	return nil
}

// finish acknowledges an interaction that no handler replied to, so the
// client stops showing a pending state.
func (m *Message) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interaction == nil || m.responded {
		return
	}
	if err := acknowledge(m.bot.session, m.interaction); err != nil {
		slog.Warn("discord: failed to acknowledge interaction", "err", err)
		return
	}
	m.responded = true
}

package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// maxMessageRunes is Discord's content limit for a single message.
const maxMessageRunes = 2000

// maxEmbedDescription is Discord's limit for an embed description.
const maxEmbedDescription = 4096

// embedColor is the sidebar color of list embeds.
const embedColor = 0x5865F2

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// listEmbed renders a titled list as an embed, one line per entry.
func listEmbed(title string, lines []string) *discordgo.MessageEmbed {
	desc := strings.Join(lines, "\n")
	if desc == "" {
		desc = "_empty_"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: truncate(desc, maxEmbedDescription),
		Color:       embedColor,
	}
}

// acknowledge tells Discord a component interaction was received without
// changing the message it belongs to.
func acknowledge(s Session, i *discordgo.Interaction) error {
	return s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// interactionMessage builds the initial response carrying content or an
// embed. Replies to a pressed button are visible only to the presser.
func interactionMessage(content string, embed *discordgo.MessageEmbed) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	if embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{embed}
	} else {
		data.Content = truncate(content, maxMessageRunes)
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

// Package mock provides test doubles for the Discord adapter.
package mock

import (
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ErrUnknownGuild is returned by [Session.Guild] for IDs missing from Guilds.
var ErrUnknownGuild = errors.New("mock: unknown guild")

// Sent is one recorded ChannelMessageSendComplex call.
type Sent struct {
	ChannelID string
	Data      *discordgo.MessageSend
}

// Session records outgoing Discord calls for test assertions. It is safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	// Messages records all ChannelMessageSendComplex calls.
	Messages []Sent

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// Guilds is served by Guild. A missing ID returns GuildErr or
	// ErrUnknownGuild.
	Guilds map[string]*discordgo.Guild

	// GuildCalls counts Guild invocations.
	GuildCalls int

	// Err is returned by the send and respond methods when non-nil.
	Err error

	// GuildErr is returned by Guild for unknown IDs when non-nil.
	GuildErr error
}

// ChannelMessageSendComplex records the message and returns a stub.
func (m *Session) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, Sent{ChannelID: channelID, Data: data})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID, Content: data.Content}, nil
}

// InteractionRespond records the response and returns the configured error.
func (m *Session) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// Guild serves a guild from Guilds.
func (m *Session) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GuildCalls++
	if g, ok := m.Guilds[guildID]; ok {
		return g, nil
	}
	if m.GuildErr != nil {
		return nil, m.GuildErr
	}
	return nil, ErrUnknownGuild
}

// LastMessage returns the most recently sent message, or nil.
func (m *Session) LastMessage() *Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return nil
	}
	s := m.Messages[len(m.Messages)-1]
	return &s
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Session) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// Reset clears all recorded calls and errors.
func (m *Session) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
	m.Responses = nil
	m.GuildCalls = 0
	m.Err = nil
	m.GuildErr = nil
}

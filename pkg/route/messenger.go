package route

import "context"

// Messenger is the per-message platform context consumed by the dispatcher.
// Implementations are created for a single inbound message and are not
// shared between dispatch cycles.
//
// The capability queries may be expensive (API calls, database lookups); the
// dispatcher asks each of them at most once per cycle.
type Messenger interface {
	// SenderText returns the plain text the sender wrote, or "" if none.
	SenderText() string

	// IsSenderAdmin reports whether the sender administers the chat.
	IsSenderAdmin(ctx context.Context) bool

	// IsSenderOwner reports whether the sender owns the chat.
	IsSenderOwner(ctx context.Context) bool

	// IsSenderEnvAdmin reports whether the sender operates the hosting
	// environment of the bot.
	IsSenderEnvAdmin(ctx context.Context) bool
}

// BotNamer is implemented by messengers that know the bot's own name. A
// messenger without it is treated as having an empty bot name.
type BotNamer interface {
	BotName() string
}

// CallbackQuerier is implemented by messengers that can carry a callback
// payload (e.g. a pressed button). A non-empty payload is preferred over the
// sender text.
type CallbackQuerier interface {
	CallbackQueryData() string
}

// BotName returns m's bot name, or "" when m does not implement [BotNamer].
func BotName(m Messenger) string {
	if bn, ok := m.(BotNamer); ok {
		return bn.BotName()
	}
	return ""
}

// InputText returns the text a dispatch cycle should work on: the callback
// payload when present and non-empty, otherwise the sender text.
func InputText(m Messenger) string {
	if cq, ok := m.(CallbackQuerier); ok {
		if data := cq.CallbackQueryData(); data != "" {
			return data
		}
	}
	return m.SenderText()
}

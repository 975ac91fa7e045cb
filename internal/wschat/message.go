package wschat

import (
	"context"
	"fmt"

	"github.com/MrWong99/chatroute/internal/observe"
)

// message is the messenger of one inbound frame.
type message struct {
	gw       *Gateway
	conn     frameConn
	id       identity
	seq      int64
	text     string
	callback string
}

func (m *message) SenderText() string        { return m.text }
func (m *message) CallbackQueryData() string { return m.callback }
func (m *message) BotName() string           { return m.gw.botName }
func (m *message) SenderID() string          { return m.id.userID }
func (m *message) SenderName() string        { return m.id.name }

// IsSenderAdmin reports the admin claim of an authenticated client.
func (m *message) IsSenderAdmin(context.Context) bool {
	return m.id.trusted && m.id.admin
}

// IsSenderOwner reports the owner claim of an authenticated client.
func (m *message) IsSenderOwner(context.Context) bool {
	return m.id.trusted && m.id.owner
}

// IsSenderEnvAdmin asks the operators store. Anonymous clients never
// qualify.
func (m *message) IsSenderEnvAdmin(ctx context.Context) bool {
	if !m.id.trusted || m.id.userID == anonymous || m.gw.operators == nil {
		return false
	}
	ok, err := m.gw.operators.IsOperator(ctx, m.id.userID)
	if err != nil {
		observe.Logger(ctx).Warn("wschat: operator lookup failed", "user", m.id.userID, "err", err)
		return false
	}
	return ok
}

// Reply sends text to the client.
func (m *message) Reply(ctx context.Context, text string) error {
	return m.send(ctx, frame{Type: "reply", Seq: m.seq, Text: text})
}

// ReplyList sends a titled list to the client.
func (m *message) ReplyList(ctx context.Context, title string, lines []string) error {
	return m.send(ctx, frame{Type: "list", Seq: m.seq, Title: title, Lines: lines})
}

func (m *message) send(ctx context.Context, f frame) error {
	if err := m.gw.write(ctx, m.conn, f); err != nil {
		if m.gw.metrics != nil {
			m.gw.metrics.RecordReplyError(ctx, "websocket")
		}
		return fmt.Errorf("wschat: reply: %w", err)
	}
	return nil
}

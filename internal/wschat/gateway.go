// Package wschat serves the route table to WebSocket clients such as web
// chat widgets and support tooling.
//
// Every text frame a client sends is one chat message:
//
//	{"text": "/help"}
//	{"callback": "/ping"}
//
// The gateway answers with JSON frames on the same connection: "reply" and
// "list" frames for whatever the handler said, then one "done" frame per
// message that reports how the dispatch cycle ended. Messages of one
// connection are dispatched in order.
package wschat

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/observe"
	"github.com/MrWong99/chatroute/pkg/dispatch"
	"github.com/MrWong99/chatroute/pkg/route"
)

const (
	// handleTimeout bounds one dispatch cycle including its replies.
	handleTimeout = 30 * time.Second

	// writeTimeout bounds a single outbound frame.
	writeTimeout = 5 * time.Second

	// readLimit is the largest inbound frame in bytes.
	readLimit = 8 << 10

	// anonymous is the sender ID of unauthenticated clients.
	anonymous = "anonymous"
)

// ErrUnauthorized is returned by the handshake when the bearer token is
// missing or wrong.
var ErrUnauthorized = errors.New("wschat: unauthorized")

// Dispatcher routes one inbound message. [*dispatch.Dispatcher] satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, m route.Messenger) (dispatch.Result, error)
}

// Config holds the gateway settings.
type Config struct {
	// Token is the shared bearer token. Clients that present it may assert
	// their user ID and chat roles in the handshake query. When Token is
	// empty every client is anonymous.
	Token string

	// BotName is the name clients append as "@name".
	BotName string

	// AllowedOrigins are additional host patterns for browser clients.
	AllowedOrigins []string
}

// Option is a functional option for [New].
type Option func(*Gateway)

// WithMetrics records inbound messages and failed replies.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway is an [http.Handler] that upgrades requests to WebSocket chat
// sessions. Close it to end all sessions; [http.Server.Shutdown] does not
// touch hijacked connections.
type Gateway struct {
	dispatcher Dispatcher
	operators  acl.Store
	token      string
	botName    string
	origins    []string
	metrics    *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	clients atomic.Int64
}

// New creates a [Gateway]. operators answers env-admin queries of
// authenticated clients and may be nil.
func New(d Dispatcher, operators acl.Store, cfg Config, opts ...Option) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		dispatcher: d,
		operators:  operators,
		token:      cfg.Token,
		botName:    cfg.BotName,
		origins:    cfg.AllowedOrigins,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Clients returns the number of open sessions.
func (g *Gateway) Clients() int64 {
	return g.clients.Load()
}

// Close ends every session with a going-away status and waits for their
// handlers to return. Later handshakes are refused.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	g.wg.Wait()
	return nil
}

// ServeHTTP performs the handshake and runs the session until the client
// disconnects or the gateway closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := g.identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		http.Error(w, "wschat: gateway closed", http.StatusServiceUnavailable)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.origins})
	if err != nil {
		// Accept has already written the HTTP error.
		slog.Debug("wschat: handshake failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	g.clients.Add(1)
	defer g.clients.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(g.ctx, cancel)
	defer stop()

	slog.Info("wschat: client connected", "user", id.userID, "trusted", id.trusted, "remote", r.RemoteAddr)
	err = g.serve(ctx, conn, id)

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		slog.Info("wschat: client disconnected", "user", id.userID)
	case g.ctx.Err() != nil:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		slog.Warn("wschat: session ended", "user", id.userID, "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
	}
}

// frameConn is the part of [websocket.Conn] a session uses.
type frameConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// serve reads frames until the connection fails. A failed write ends the
// session as well.
func (g *Gateway) serve(ctx context.Context, conn frameConn, id identity) error {
	var seq int64
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		seq++

		if typ != websocket.MessageText {
			if err := g.write(ctx, conn, frame{Type: "error", Seq: seq, Error: "expected a text frame"}); err != nil {
				return err
			}
			continue
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			if err := g.write(ctx, conn, frame{Type: "error", Seq: seq, Error: "malformed message: " + err.Error()}); err != nil {
				return err
			}
			continue
		}

		m := &message{
			gw:       g,
			conn:     conn,
			id:       id,
			seq:      seq,
			text:     in.Text,
			callback: in.Callback,
		}
		mctx, cancel := context.WithTimeout(ctx, handleTimeout)
		res, err := g.dispatch(mctx, m)
		cancel()

		done := frame{Type: "done", Seq: seq, Handled: res.Handled, Phase: res.Phase.String()}
		if res.Route != nil {
			done.Route = res.Route.Name
		}
		if err != nil {
			done.Error = err.Error()
		}
		if err := g.write(ctx, conn, done); err != nil {
			return err
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, m *message) (dispatch.Result, error) {
	ctx, span := observe.StartSpan(ctx, "wschat.message")
	defer span.End()

	if g.metrics != nil {
		g.metrics.RecordMessage(ctx, "websocket")
	}
	res, err := g.dispatcher.Dispatch(ctx, m)
	if err != nil {
		observe.Logger(ctx).Warn("wschat: dispatch failed", "user", m.id.userID, "err", err)
	}
	return res, err
}

func (g *Gateway) write(ctx context.Context, conn frameConn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// identity is who a session speaks for.
type identity struct {
	userID  string
	name    string
	admin   bool
	owner   bool
	trusted bool
}

// identify checks the bearer token and reads the handshake query. The token
// may be sent as an Authorization header or, for browsers that cannot set
// headers on WebSocket handshakes, as the access_token query parameter.
func (g *Gateway) identify(r *http.Request) (identity, error) {
	q := r.URL.Query()
	if g.token == "" {
		return identity{userID: anonymous, name: anonymous}, nil
	}

	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if presented == "" {
		presented = q.Get("access_token")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) != 1 {
		return identity{}, ErrUnauthorized
	}

	id := identity{
		userID:  strings.TrimSpace(q.Get("user")),
		name:    strings.TrimSpace(q.Get("name")),
		admin:   q.Get("admin") == "true",
		owner:   q.Get("owner") == "true",
		trusted: true,
	}
	if id.userID == "" {
		id.userID = anonymous
	}
	if id.name == "" {
		id.name = id.userID
	}
	return id, nil
}

// inbound is a client message.
type inbound struct {
	Text     string `json:"text"`
	Callback string `json:"callback"`
}

// frame is a server message.
type frame struct {
	Type    string   `json:"type"`
	Seq     int64    `json:"seq"`
	Text    string   `json:"text,omitempty"`
	Title   string   `json:"title,omitempty"`
	Lines   []string `json:"lines,omitempty"`
	Handled bool     `json:"handled,omitempty"`
	Route   string   `json:"route,omitempty"`
	Phase   string   `json:"phase,omitempty"`
	Error   string   `json:"error,omitempty"`
}

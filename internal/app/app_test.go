package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chatroute/internal/acl"
	"github.com/MrWong99/chatroute/internal/app"
	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/internal/discord"
)

// testConfig returns a minimal config with a handful of built-in routes.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Discord: config.DiscordConfig{
			EnvAdminIDs:   []string{"root"},
			SuggestOnMiss: true,
		},
		Dispatch: config.DispatchConfig{BotNameMismatch: config.MismatchAbort},
		Routes: []config.RouteConfig{
			{Name: "ping", Handler: "ping", Aliases: []string{"/ping"}, MatchBotName: true},
			{Name: "help", Handler: "help", Aliases: []string{"/help"}},
			{Name: "operators", Handler: "operators", Aliases: []string{"/operators"}, RequireEnvAdmin: true},
		},
	}
}

// fakeBot records its lifecycle.
type fakeBot struct {
	dispatcher discord.Dispatcher
	connected  atomic.Bool
	ran        atomic.Bool
	closed     atomic.Int32
}

func (b *fakeBot) Run(ctx context.Context) error {
	b.ran.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBot) Close() error {
	b.closed.Add(1)
	return nil
}

func (b *fakeBot) Connected() bool { return b.connected.Load() }

func withFakeBot(b *fakeBot) app.Option {
	return app.WithBotFactory(func(_ context.Context, d discord.Dispatcher, _ acl.Store) (app.Bot, error) {
		b.dispatcher = d
		return b, nil
	})
}

// chatter is a plain messenger that records replies.
type chatter struct {
	text    string
	mu      sync.Mutex
	replies []string
}

func (c *chatter) SenderText() string                    { return c.text }
func (c *chatter) IsSenderAdmin(context.Context) bool    { return false }
func (c *chatter) IsSenderOwner(context.Context) bool    { return false }
func (c *chatter) IsSenderEnvAdmin(context.Context) bool { return false }
func (c *chatter) BotName() string                       { return "RouteBot" }

func (c *chatter) Reply(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_WiresDispatcher(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	a := newApp(t, testConfig(), withFakeBot(bot), app.WithVersion("v0.0.1"))

	if a.Table().Len() != 3 {
		t.Fatalf("Table().Len() = %d, want 3", a.Table().Len())
	}
	if bot.dispatcher == nil {
		t.Fatal("bot factory did not receive a dispatcher")
	}

	c := &chatter{text: "/ping@routebot"}
	res, err := bot.dispatcher.Dispatch(context.Background(), c)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Handled || len(c.replies) != 1 || c.replies[0] != "pong (chatroute v0.0.1)" {
		t.Errorf("result = %+v, replies = %v", res, c.replies)
	}

	typo := &chatter{text: "/halp"}
	if res, _ := a.Dispatcher().Dispatch(context.Background(), typo); res.Handled {
		t.Fatalf("typo was handled: %+v", res)
	}
	if len(typo.replies) != 1 || !strings.Contains(typo.replies[0], "`/help`") {
		t.Errorf("suggestion replies = %v, want a /help suggestion", typo.replies)
	}
}

func TestNew_SeedsOperators(t *testing.T) {
	t.Parallel()
	ops := acl.NewMemStore("existing")
	a := newApp(t, testConfig(), app.WithOperators(ops), withFakeBot(&fakeBot{}))

	for _, id := range []string{"existing", "root"} {
		if ok, _ := a.Operators().IsOperator(context.Background(), id); !ok {
			t.Errorf("%s is not an operator", id)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown handler", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Routes = append(cfg.Routes, config.RouteConfig{Handler: "nope", Aliases: []string{"/x"}})
		_, err := app.New(context.Background(), cfg, withFakeBot(&fakeBot{}))
		if !errors.Is(err, config.ErrHandlerNotRegistered) {
			t.Errorf("New = %v, want ErrHandlerNotRegistered", err)
		}
	})

	t.Run("bot factory", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("gateway refused")
		_, err := app.New(context.Background(), testConfig(), app.WithBotFactory(
			func(context.Context, discord.Dispatcher, acl.Store) (app.Bot, error) { return nil, boom },
		))
		if !errors.Is(err, boom) {
			t.Errorf("New = %v, want %v", err, boom)
		}
	})
}

func TestHandler_Probes(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "chatroute_up 1\n")
	})
	a := newApp(t, testConfig(), withFakeBot(bot), app.WithMetricsHandler(metrics))

	get := func(path string) (*httptest.ResponseRecorder, map[string]any) {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec, body
	}

	if rec, _ := get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}

	rec, body := get("/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with disconnected bot = %d, want 503", rec.Code)
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["routes"] != "ok" || !strings.HasPrefix(checks["discord"].(string), "fail") {
		t.Errorf("checks = %v", checks)
	}

	bot.connected.Store(true)
	if rec, _ := get("/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz with connected bot = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "chatroute_up 1") {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newApp(t, testConfig(), withFakeBot(&fakeBot{}))

	old := testConfig()
	next := testConfig()
	next.Discord.EnvAdminIDs = []string{"alice"}
	next.Routes = next.Routes[:1]

	if err := a.ApplyConfig(ctx, config.Diff(old, next)); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if ok, _ := a.Operators().IsOperator(ctx, "alice"); !ok {
		t.Error("alice was not granted")
	}
	if ok, _ := a.Operators().IsOperator(ctx, "root"); ok {
		t.Error("root was not revoked")
	}
	if a.Table().Len() != 3 {
		t.Errorf("route table changed without restart: %d routes", a.Table().Len())
	}
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	bot := &fakeBot{}
	bot.connected.Store(true)
	a := newApp(t, cfg, withFakeBot(bot))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.Addr() == nil {
		t.Fatal("ops server did not bind")
	}

	resp, err := http.Get("http://" + a.Addr().String() + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !bot.ran.Load() {
		t.Error("bot.Run was not called")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if n := bot.closed.Load(); n != 1 {
		t.Errorf("bot closed %d times, want 1", n)
	}
}

func TestRun_WithoutBotOrServer(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), app.WithBotFactory(
		func(context.Context, discord.Dispatcher, acl.Store) (app.Bot, error) { return nil, nil },
	))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Run returned before the context was done")
	}
}

func TestChatGateway_ServedThroughOpsHandler(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Discord.BotName = "RouteBot"
	cfg.ChatGateway = config.ChatGatewayConfig{Enabled: true, Path: "/ws", Token: "tok"}
	a := newApp(t, cfg, withFakeBot(&fakeBot{}))

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=root"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer tok"}},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"text":"/operators"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var reply struct {
		Type  string   `json:"type"`
		Lines []string `json:"lines"`
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if reply.Type != "list" || len(reply.Lines) != 1 || !strings.HasPrefix(reply.Lines[0], "root ") {
		t.Errorf("operators reply = %s, want a listing with the seeded operator", data)
	}
}

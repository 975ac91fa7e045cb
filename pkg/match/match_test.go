package match_test

import (
	"context"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/chatroute/pkg/match"
	"github.com/MrWong99/chatroute/pkg/route"
	"github.com/MrWong99/chatroute/pkg/textnorm"
)

func newRoute(aliases []string, opts ...route.Option) *route.Route {
	var b route.Builder
	b.Handle(func(context.Context, *route.Request) error { return nil }, aliases, opts...)
	tbl, err := b.Build()
	if err != nil {
		panic(err)
	}
	return tbl.Route(0)
}

func TestExact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		route      *route.Route
		text       string
		botName    string
		want       match.Outcome
		wantParams []string
	}{
		{
			name:       "require data with data",
			route:      newRoute([]string{"ban"}, route.WithRequireData()),
			text:       "ban user1",
			want:       match.Matched,
			wantParams: []string{"user1"},
		},
		{
			name:  "require data without data",
			route: newRoute([]string{"ban"}, route.WithRequireData()),
			text:  "ban",
			want:  match.NoMatch,
		},
		{
			name:       "second alias with trailing tokens",
			route:      newRoute([]string{"/ban", "block"}, route.WithReturnData()),
			text:       "block user1 3d",
			want:       match.Matched,
			wantParams: []string{"user1", "3d"},
		},
		{
			name:       "case and punctuation folded",
			route:      newRoute([]string{"/ban"}),
			text:       "  /BAN  User1! ",
			want:       match.Matched,
			wantParams: []string{"user1"},
		},
		{
			name:       "no trailing tokens",
			route:      newRoute([]string{"/ban"}),
			text:       "/ban",
			want:       match.Matched,
			wantParams: []string{},
		},
		{
			name:       "multi-token alias",
			route:      newRoute([]string{"get status"}),
			text:       "Get Status now",
			want:       match.Matched,
			wantParams: []string{"now"},
		},
		{
			name:  "alias longer than text",
			route: newRoute([]string{"get status"}),
			text:  "get",
			want:  match.NoMatch,
		},
		{
			name:  "prefix must be whole tokens",
			route: newRoute([]string{"ban"}),
			text:  "banner",
			want:  match.NoMatch,
		},
		{
			name:  "alias must be a prefix",
			route: newRoute([]string{"ban"}),
			text:  "please ban user1",
			want:  match.NoMatch,
		},
		{
			name:       "custom separator",
			route:      newRoute([]string{"/ban"}, route.WithSeparator("_")),
			text:       "/ban_User1_2d",
			want:       match.Matched,
			wantParams: []string{"user1", "2d"},
		},
		{
			name:       "cyrillic alias",
			route:      newRoute([]string{"помощь"}),
			text:       "ПОМОЩЬ срочно",
			want:       match.Matched,
			wantParams: []string{"срочно"},
		},
		{
			name:    "wrong bot name aborts",
			route:   newRoute([]string{"/start"}, route.WithBotName()),
			text:    "/start@WrongBot",
			botName: "RightBot",
			want:    match.Abort,
		},
		{
			name:       "right bot name is stripped",
			route:      newRoute([]string{"/start"}, route.WithBotName()),
			text:       "/start@rightbot ",
			botName:    " RightBot",
			want:       match.Matched,
			wantParams: []string{},
		},
		{
			name:       "no bot name in text",
			route:      newRoute([]string{"/start"}, route.WithBotName()),
			text:       "/start",
			botName:    "RightBot",
			want:       match.Matched,
			wantParams: []string{},
		},
		{
			name:    "last at sign is the claimed name",
			route:   newRoute([]string{"/mail"}, route.WithBotName()),
			text:    "/mail a@b @RightBot",
			botName: "RightBot",
			want:    match.Matched,
			// The remainder "/mail a@b" keeps its first '@', which
			// normalisation then drops.
			wantParams: []string{"ab"},
		},
		{
			name:    "empty bot name aborts any claim",
			route:   newRoute([]string{"/start"}, route.WithBotName()),
			text:    "/start@RightBot",
			botName: "",
			want:    match.Abort,
		},
		{
			name:    "bot name ignored for data routes",
			route:   newRoute([]string{"/start"}, route.WithBotName(), route.WithReturnData()),
			text:    "/start@WrongBot",
			botName: "RightBot",
			// '@' is not a separator, so the whole word no longer equals the alias.
			want: match.NoMatch,
		},
		{
			name:  "bot name ignored when not requested",
			route: newRoute([]string{"/start"}),
			text:  "/start@WrongBot",
			want:  match.NoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := match.Exact(tt.route, tt.text, tt.botName)
			if got.Outcome != tt.want {
				t.Fatalf("Outcome = %v, want %v", got.Outcome, tt.want)
			}
			if tt.want != match.Matched {
				if got.Params != nil {
					t.Errorf("Params = %q, want nil for %v", got.Params, got.Outcome)
				}
				return
			}
			if got.Params == nil {
				t.Fatal("Params is nil for a match")
			}
			if !slices.Equal(got.Params, tt.wantParams) {
				t.Errorf("Params = %q, want %q", got.Params, tt.wantParams)
			}
		})
	}
}

func TestExact_FirstAliasWins(t *testing.T) {
	t.Parallel()

	r := newRoute([]string{"get", "get status"})
	got := match.Exact(r, "get status", "")
	if got.Alias != "get" {
		t.Errorf("Alias = %q, want %q", got.Alias, "get")
	}
	if !slices.Equal(got.Params, []string{"status"}) {
		t.Errorf("Params = %q, want [status]", got.Params)
	}
}

func TestExact_ParamsAreFresh(t *testing.T) {
	t.Parallel()

	r := newRoute([]string{"echo"}, route.WithReturnData())
	a := match.Exact(r, "echo one", "")
	b := match.Exact(r, "echo two", "")
	a.Params[0] = "mutated"
	if b.Params[0] != "two" {
		t.Errorf("results share parameter storage: %q", b.Params)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 100},
		{"abc", "abc", 100},
		{"abc", "", 0},
		{"kitten", "sitting", (1 - 3.0/7) * 100},
		{"помощь", "помощ", (1 - 1.0/6) * 100},
		// One substitution plus one deletion.
		{"помощь", "помащ", (1 - 2.0/6) * 100},
		{"help", "hepl", 50},
	}

	for _, tt := range tests {
		if got := match.Similarity(tt.a, tt.b); !approx(got, tt.want) {
			t.Errorf("Similarity(%q, %q) = %.2f, want %.2f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	words := []string{"", "a", "ban", "block user", "помощь", "помащ", "start", "/Start@Bot", "ёжик", "re-roll 42"}
	for _, a := range words {
		na := textnorm.Normalize(a, true)
		if got := match.Similarity(na, na); got != 100 {
			t.Errorf("Similarity(%q, %q) = %v, want 100", na, na, got)
		}
		for _, b := range words {
			nb := textnorm.Normalize(b, true)
			ab, ba := match.Similarity(na, nb), match.Similarity(nb, na)
			if ab != ba {
				t.Errorf("Similarity(%q, %q) = %v but reversed = %v", na, nb, ab, ba)
			}
			if ab < 0 || ab > 100 {
				t.Errorf("Similarity(%q, %q) = %v out of [0, 100]", na, nb, ab)
			}
		}
	}
}

func TestFuzzy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		route     *route.Route
		text      string
		wantOK    bool
		wantScore float64
	}{
		{
			name:      "one deletion above threshold",
			route:     newRoute([]string{"помощь"}, route.WithTemperature(80)),
			text:      "помощ",
			wantOK:    true,
			wantScore: (1 - 1.0/6) * 100,
		},
		{
			name:      "two edits below threshold",
			route:     newRoute([]string{"помощь"}, route.WithTemperature(80)),
			text:      "помащ",
			wantOK:    false,
			wantScore: (1 - 2.0/6) * 100,
		},
		{
			name:      "threshold is inclusive",
			route:     newRoute([]string{"help"}, route.WithTemperature(50)),
			text:      "hepl",
			wantOK:    true,
			wantScore: 50,
		},
		{
			name:      "best alias scores",
			route:     newRoute([]string{"start", "help me"}, route.WithTemperature(85)),
			text:      "Help  me!",
			wantOK:    true,
			wantScore: 100,
		},
		{
			name:   "exact-only route",
			route:  newRoute([]string{"help"}),
			text:   "help",
			wantOK: false,
		},
		{
			name:   "data route never fuzzy",
			route:  newRoute([]string{"help"}, route.WithTemperature(10), route.WithReturnData()),
			text:   "help",
			wantOK: false,
		},
		{
			name:   "require-data route never fuzzy",
			route:  newRoute([]string{"help"}, route.WithTemperature(10), route.WithRequireData()),
			text:   "help",
			wantOK: false,
		},
		{
			name:      "zero temperature accepts anything",
			route:     newRoute([]string{"help"}, route.WithTemperature(0)),
			text:      "zzzzzzzz",
			wantOK:    true,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			score, ok := match.Fuzzy(tt.route, tt.text)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v (score %.2f)", ok, tt.wantOK, score)
			}
			if !approx(score, tt.wantScore) {
				t.Errorf("score = %.2f, want %.2f", score, tt.wantScore)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	aliases := []string{"/ban", "/help", "/start", "get status"}

	tests := []struct {
		name   string
		text   string
		min    float64
		want   string
		wantOK bool
	}{
		{"transposed letters", "/hepl me", 40, "/help", true},
		{"multi-word alias", "get statsu please", 50, "get status", true},
		{"nothing close", "zzzzzz", 50, "", false},
		{"empty input", "   ", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, _, ok := match.Suggest(aliases, tt.text, tt.min)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Suggest(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	for o, want := range map[match.Outcome]string{
		match.NoMatch: "no_match",
		match.Matched: "matched",
		match.Abort:   "abort",
	} {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}

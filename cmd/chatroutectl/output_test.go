package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputResult_Formats(t *testing.T) {
	res := MatchResult{Text: "/ping", Handled: true, Route: "ping", Phase: "exact", Replies: []string{"pong"}}

	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, res, "json"))
	var decoded MatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, res, decoded)

	buf.Reset()
	require.NoError(t, outputResult(&buf, res, "yaml"))
	assert.Contains(t, buf.String(), "route: ping\n")
	assert.Contains(t, buf.String(), "- pong\n")

	buf.Reset()
	require.NoError(t, outputResult(&buf, res, "table"))
	assert.Contains(t, buf.String(), "ROUTE")

	assert.Error(t, outputResult(&buf, res, "xml"))
}

func TestOutputTable_UnknownTypeFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, map[string]int{"n": 1}, "table"))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestOutputMatchTable(t *testing.T) {
	tests := []struct {
		name string
		res  MatchResult
		want []string
		not  []string
	}{
		{
			name: "fuzzy match",
			res:  MatchResult{Text: "hlep", Handled: true, Route: "help", Phase: "fuzzy", Similarity: 50},
			want: []string{"ROUTE", "help", "fuzzy", "50.00%"},
			not:  []string{"ARGS", "RESULT"},
		},
		{
			name: "aborted miss",
			res:  MatchResult{Text: "/ping@other", Phase: "none", Aborted: true},
			want: []string{"no match", "ABORTED"},
			not:  []string{"ROUTE"},
		},
		{
			name: "no input",
			res:  MatchResult{Phase: "none", NoInput: true, Error: "dispatch: no input text"},
			want: []string{"no input", "ERROR"},
		},
		{
			name: "multi-line reply",
			res:  MatchResult{Text: "/help", Handled: true, Route: "help", Phase: "exact", Replies: []string{"Commands\n`/ping`"}},
			want: []string{"Commands / `/ping`"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, outputResult(&buf, tc.res, "table"))
			out := buf.String()
			for _, w := range tc.want {
				assert.Contains(t, out, w)
			}
			for _, n := range tc.not {
				assert.False(t, strings.Contains(out, n), "output should not contain %q:\n%s", n, out)
			}
		})
	}
}

func TestRouteFlags(t *testing.T) {
	assert.Equal(t, "-", routeFlags(RouteInfo{}))
	assert.Equal(t, "data", routeFlags(RouteInfo{ReturnData: true}))
	assert.Equal(t, "data,require-data,@name", routeFlags(RouteInfo{ReturnData: true, RequireData: true, MatchBotName: true}))
}

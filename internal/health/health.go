// Package health serves the liveness and readiness probes of the chatroute
// daemon.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered [Checker] concurrently and answers 200 only when all of
// them pass. Both respond with a JSON object holding a "status" field ("ok"
// or "fail") and, for /readyz, a "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrNotReady is returned by [Ready] when the dependency has not finished
// starting.
var ErrNotReady = errors.New("health: not ready")

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name labels the check in the JSON response, e.g. "routes" or "discord".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Ready builds a [Checker] from a boolean probe such as a connected gateway
// session. It fails with [ErrNotReady] while probe returns false.
func Ready(name string, probe func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !probe() {
			return ErrNotReady
		}
		return nil
	}}
}

// Result is the JSON body of both probes.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Result{Status: "ok"})
}

// Readyz is the readiness probe. Checks run in parallel, each bounded by
// [checkTimeout] on top of the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Evaluate(r.Context())
	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Evaluate runs all checkers and returns the aggregated result.
func (h *Handler) Evaluate(ctx context.Context) Result {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	// A plain group, not WithContext: one failing check must not cancel the
	// others, every check reports its own state.
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Status: "ok", Checks: checks}
	if failed {
		res.Status = "fail"
	}
	return res
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

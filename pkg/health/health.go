// Package health serves the liveness and readiness probes of the promotion
// server.
//
// Each check is polled on its own ticker. A check turns unhealthy after
// failureThreshold consecutive failures and healthy again after
// successThreshold consecutive passes.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

const (
	failureThreshold = 3
	successThreshold = 1
)

// Kind selects the probe a check belongs to.
type Kind uint8

const (
	// Liveness checks fail when the process should be restarted.
	Liveness Kind = iota
	// Readiness checks fail when the process should not receive traffic.
	Readiness
)

func (k Kind) String() string {
	if k == Readiness {
		return "readiness"
	}
	return "liveness"
}

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the polling goroutine.
	fails, passes int
}

func (c *check) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.fn(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.passes = 0
		c.fails++
		if c.fails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.lastErr.Store(nil)
	c.fails = 0
	c.passes++
	if c.passes >= successThreshold {
		c.healthy.Store(true)
	}
}

// failure describes an unhealthy check, or "" when it is healthy.
func (c *check) failure() string {
	if c.healthy.Load() {
		return ""
	}
	if msg := c.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health tracks the probes of one process. It starts not ready.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks [2][]*check
}

// New returns an empty Health.
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy until polled.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks[kind] = append(h.checks[kind], c)
	h.mu.Unlock()
}

func (h *Health) snapshot(kind Kind) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.checks[kind])
}

// Run polls every registered check each interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range []Kind{Liveness, Readiness} {
		for _, c := range h.snapshot(kind) {
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					c.poll(ctx)
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		}
	}
	return g.Wait()
}

// SetReady flips the manual readiness switch. The server sets it after
// startup and clears it when shutdown begins.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the switch is on and every readiness check passes.
func (h *Health) Ready() bool {
	return len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	out := make(map[string]string)
	for _, c := range h.snapshot(kind) {
		if msg := c.failure(); msg != "" {
			out[c.name] = msg
		}
	}
	if kind == Readiness && !h.ready.Load() {
		out["_readiness"] = "service is not ready"
	}
	return out
}

// Handler serves the probe of kind: 200 {"status":"ok"} when healthy,
// otherwise 503 with the failing checks.
func (h *Health) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		failures := h.failures(kind)

		var e jx.Encoder
		status := http.StatusOK
		e.ObjStart()
		e.FieldStart("status")
		if len(failures) == 0 {
			e.Str("ok")
		} else {
			status = http.StatusServiceUnavailable
			e.Str("unhealthy")
			e.FieldStart("checks")
			e.ObjStart()
			for _, name := range slices.Sorted(maps.Keys(failures)) {
				e.FieldStart(name)
				e.Str(failures[name])
			}
			e.ObjEnd()
		}
		e.ObjEnd()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(e.Bytes())
	}
}

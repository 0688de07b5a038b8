// Package breaker wraps a zlink.Proxy with a circuit breaker so a client
// talking to an unreliable peer fails fast instead of piling up blocked
// calls against a connection that's already dead in practice. Grounded on
// alfred-ai's CircuitBreakerProvider (internal/adapter/llm/circuitbreaker.go).
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"git.sr.ht/~varlinkrt/zlink-go"
)

// Config configures the breaker's trip/reset behavior.
type Config struct {
	// MaxFailures is the number of consecutive failed Do calls before the
	// breaker opens.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before allowing a single
	// half-open probe.
	Timeout time.Duration
	// Interval resets the closed-state failure count every Interval; 0
	// means failures never reset until the breaker opens.
	Interval time.Duration
	Logger   *slog.Logger
}

const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 10 * time.Second
)

// Proxy decorates a *zlink.Proxy's Do calls with a circuit breaker. It does
// not wrap DoOneway, DoMore or Chain: those are either fire-and-forget or
// long-lived streams the breaker's single-call model doesn't fit.
type Proxy struct {
	inner *zlink.Proxy
	cb    *gobreaker.CircuitBreaker[zlink.Outcome]
}

// New wraps inner with cfg's breaker settings.
func New(inner *zlink.Proxy, cfg Config) *Proxy {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[zlink.Outcome](gobreaker.Settings{
		Name:        "zlink.Proxy",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Proxy{inner: inner, cb: cb}
}

// Do routes a single immediate call through the breaker, failing fast with
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests when the breaker
// isn't letting calls through.
func (p *Proxy) Do(ctx context.Context, method string, params interface{}) (zlink.Outcome, error) {
	return p.cb.Execute(func() (zlink.Outcome, error) {
		outcome, err := p.inner.Do(ctx, method, params)
		if err != nil {
			return zlink.Outcome{}, err
		}
		return outcome, nil
	})
}

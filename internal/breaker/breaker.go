// Package breaker wraps the vector-store client in a circuit breaker so a
// failing or slow external store degrades the Memory Manager to its last
// snapshot instead of retrying synchronously on every request.
package breaker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/riskcore-io/riskcore/internal/riskerr"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Client decorates a vectorstore.Client with a gobreaker circuit breaker.
type Client struct {
	inner   vectorstore.Client
	breaker *gobreaker.CircuitBreaker
}

// Config tunes the breaker thresholds.
type Config struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func New(inner vectorstore.Client, cfg Config) *Client {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("vectorstore circuit breaker state change")
		},
	}
	return &Client{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (c *Client) FetchVectors(ctx context.Context, filters vectorstore.Filters) ([]vectorstore.Vector, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.FetchVectors(ctx, filters)
	})
	if err != nil {
		return nil, wrapBreakerErr("FetchVectors", err)
	}
	return res.([]vectorstore.Vector), nil
}

func (c *Client) Stats(ctx context.Context) (vectorstore.Stats, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Stats(ctx)
	})
	if err != nil {
		return vectorstore.Stats{}, wrapBreakerErr("Stats", err)
	}
	return res.(vectorstore.Stats), nil
}

func (c *Client) StoreOutcome(ctx context.Context, v vectorstore.Vector) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.inner.StoreOutcome(ctx, v)
	})
	if err != nil {
		return wrapBreakerErr("StoreOutcome", err)
	}
	return nil
}

// State reports the breaker's current state name, exposed for /healthz.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func wrapBreakerErr(op string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return riskerr.Wrap("breaker."+op, riskerr.StoreUnavailable, err)
	}
	return riskerr.Wrap("breaker."+op, riskerr.StoreUnavailable, err)
}

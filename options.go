package coop

import (
	"github.com/ehrlich-b/go-coop/internal/logging"
	"github.com/ehrlich-b/go-coop/internal/transport"
)

type config struct {
	logger      *logging.Logger
	ring        transport.Ring
	ringEntries uint32
	capacity    int
}

func defaultConfig() *config {
	return &config{
		logger:      logging.Default(),
		ringEntries: 256,
		capacity:    4096,
	}
}

// Option configures a Scheduler built with New.
type Option func(*config)

// WithLogger sets the logger the scheduler uses for debug tracing.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTransport supplies a pre-built transport.Ring, bypassing
// transport.NewRing entirely. Used by tests to inject a fake ring, and by
// callers that want to share one ring across multiple schedulers' worth of
// setup code.
func WithTransport(ring transport.Ring) Option {
	return func(c *config) { c.ring = ring }
}

// WithRingEntries sizes the transport's own submission/completion ring.
// Ignored if WithTransport is also given.
func WithRingEntries(n uint32) Option {
	return func(c *config) { c.ringEntries = n }
}

// WithCapacity bounds submission_capacity (spec.md §3): the number of
// asynchronous submissions the scheduler will allow to be in flight (i.e.
// present in its pending map) at once. A submitting primitive called while
// already at this bound fails fast with EINVAL rather than submitting.
func WithCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

// Package metrics adapts a statsd client to the push.Metrics contract.
package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
)

// Statsd forwards counters to a statsd daemon. Emission failures are logged
// and dropped; metrics are never allowed to fail a request.
type Statsd struct {
	client statsd.ClientInterface
	logger zerolog.Logger
}

// New dials the statsd daemon at addr, prefixing all metric names with
// namespace.
func New(addr, namespace string, logger zerolog.Logger) (*Statsd, error) {
	client, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}
	return &Statsd{
		client: client,
		logger: logger.With().Str("component", "statsd").Logger(),
	}, nil
}

// Incr bumps a plain counter by one.
func (m *Statsd) Incr(name string) {
	if err := m.client.Incr(name, nil, 1); err != nil {
		m.logger.Debug().Err(err).Str("metric", name).Msg("Failed to emit counter")
	}
}

// Count adds value to a counter with "key:value" tags.
func (m *Statsd) Count(name string, value int64, tags ...string) {
	if err := m.client.Count(name, value, tags, 1); err != nil {
		m.logger.Debug().Err(err).Str("metric", name).Msg("Failed to emit count")
	}
}

// Close flushes and shuts down the underlying client.
func (m *Statsd) Close() error {
	return m.client.Close()
}

// Nop discards all metrics. Used when no statsd address is configured.
type Nop struct{}

func (Nop) Incr(string)                    {}
func (Nop) Count(string, int64, ...string) {}

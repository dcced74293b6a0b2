package tvio

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
)

type config struct {
	logHandler     slog.Handler
	msink          metrics.MetricSink
	metricLabels   []metrics.Label
	ids            IDGenerator
	heartbeat      time.Duration
	peerTimeout    time.Duration
	publishTimeout time.Duration
}

func defaultConfig() config {
	return config{
		heartbeat:      1 * time.Second,
		peerTimeout:    5 * time.Second,
		publishTimeout: 5 * time.Second,
	}
}

// Option to pass to `New`
type Option func(*config) error

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the runtime. A nil sink discards them.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the runtime.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithIDGenerator replaces the UUID generator used for handles and requests.
// Identifiers it returns MUST be unique for the lifetime of the process.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *config) error {
		if gen == nil {
			return errors.New("nil id generator")
		}
		c.ids = gen
		return nil
	}
}

// WithHeartbeat controls how often handles re-announce themselves on their
// topics.
func WithHeartbeat(period time.Duration) Option {
	return func(c *config) error {
		if period <= 0 {
			return errors.New("heartbeat must be positive")
		}
		c.heartbeat = period
		return nil
	}
}

// WithPeerTimeout controls how long a silent peer is still considered
// connected. It MUST be longer than the heartbeat of the peers, or they
// will flap.
func WithPeerTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return errors.New("peer timeout must be positive")
		}
		c.peerTimeout = timeout
		return nil
	}
}

// WithPublishTimeout bounds each hand-off to the bus.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c.publishTimeout = timeout
		return nil
	}
}

package gossipbus

import (
	"log/slog"

	leg_metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/memberlist"
	"github.com/hashicorp/serf/serf"
)

type config struct {
	serfCfg    *serf.Config
	logHandler slog.Handler
	neighbours []string
}

// Option to pass to `Create`
type Option func(*config) error

// WithListenOn specifies which interface the gossip protocol binds to, for
// both UDP and TCP.
func WithListenOn(addr string, port int) Option {
	return func(c *config) error {
		c.serfCfg.MemberlistConfig.BindAddr = addr
		c.serfCfg.MemberlistConfig.BindPort = port
		return nil
	}
}

// WithLocalNetwork tunes the gossip timings for a loopback or a single
// host network.
func WithLocalNetwork() Option {
	return func(c *config) error {
		local := memberlist.DefaultLocalConfig()
		local.Name = c.serfCfg.MemberlistConfig.Name
		local.BindAddr = c.serfCfg.MemberlistConfig.BindAddr
		local.BindPort = c.serfCfg.MemberlistConfig.BindPort
		local.MetricLabels = c.serfCfg.MemberlistConfig.MetricLabels
		c.serfCfg.MemberlistConfig = local
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithHostname specifies which hostname should be exposed to other
// peers when joining the cluster. For a well-behaving cluster, the name
// MUST be unique.
func WithHostname(hostname string) Option {
	return func(c *config) error {
		if hostname != "" {
			c.serfCfg.NodeName = hostname
			c.serfCfg.MemberlistConfig.Name = hostname
		}
		return nil
	}
}

// WithMetricLabels adds static labels to the metrics of the gossip layer.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		// TODO: drop the translation once memberlist moves to the hashicorp
		// fork of go-metrics.
		c.serfCfg.MemberlistConfig.MetricLabels = make([]leg_metrics.Label, len(labels))
		for i, label := range labels {
			c.serfCfg.MemberlistConfig.MetricLabels[i] = leg_metrics.Label{
				Name:  label.Name,
				Value: label.Value,
			}
		}
		return nil
	}
}

// WithNeighbours controls which peers are tried initially to Join the
// cluster.
func WithNeighbours(neighbours []string) Option {
	return func(c *config) error {
		c.neighbours = neighbours
		return nil
	}
}

// WithMaxPayload raises the size limit of a message, topic included. Serf
// refuses anything above 9KiB.
func WithMaxPayload(limit int) Option {
	return func(c *config) error {
		if limit > MaxPayload {
			limit = MaxPayload
		}
		c.serfCfg.UserEventSizeLimit = limit
		return nil
	}
}

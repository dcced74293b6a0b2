package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-metrics"
	metricsprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raskyld/tvio"
	"github.com/raskyld/tvio/pkg/bus"
	"github.com/raskyld/tvio/pkg/bus/gossipbus"
	"github.com/raskyld/tvio/pkg/bus/p2pbus"
	"github.com/raskyld/tvio/pkg/bus/redisbus"
)

// environment is what a command needs to talk to the bus.
type environment struct {
	logger  *slog.Logger
	ps      bus.PubSub
	rt      *tvio.Runtime
	metrics *http.Server
}

func newLogHandler(opts *RootOptions, w io.Writer) slog.Handler {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.LogFormat == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// openEnvironment connects to the bus described by the configuration and
// starts a runtime on top of it. Callers MUST close it.
func openEnvironment(ctx context.Context, opts *RootOptions, logOut io.Writer) (*environment, error) {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return nil, err
	}

	handler := newLogHandler(opts, logOut)
	env := &environment{logger: slog.New(handler)}

	var labels []metrics.Label
	for name, value := range cfg.Labels {
		labels = append(labels, metrics.Label{Name: name, Value: value})
	}

	env.ps, err = openBus(ctx, cfg, handler, labels)
	if err != nil {
		return nil, err
	}

	rtOpts := []tvio.Option{
		tvio.WithLog(handler),
		tvio.WithMetricLabels(labels),
		tvio.WithHeartbeat(cfg.Heartbeat),
		tvio.WithPeerTimeout(cfg.PeerTimeout),
	}
	if opts.MetricsAddr != "" {
		sink, err := metricsprom.NewPrometheusSinkFrom(metricsprom.PrometheusOpts{
			Expiration: time.Minute,
			Registerer: prometheus.DefaultRegisterer,
		})
		if err != nil {
			_ = env.ps.Close()
			return nil, fmt.Errorf("prometheus sink: %w", err)
		}
		rtOpts = append(rtOpts, tvio.WithMetricSink(sink))
		env.serveMetrics(opts.MetricsAddr)
	} else {
		rtOpts = append(rtOpts, tvio.WithMetricSink(nil))
	}

	env.rt, err = tvio.New(env.ps, rtOpts...)
	if err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

func openBus(ctx context.Context, cfg Config, handler slog.Handler, labels []metrics.Label) (bus.PubSub, error) {
	switch cfg.Bus.Kind {
	case BusMemory:
		return bus.NewMemory(), nil

	case BusGossip:
		gcfg := cfg.Bus.Gossip
		if gcfg.Name == "" {
			// Several CLIs may share a host.
			host, _ := os.Hostname()
			gcfg.Name = fmt.Sprintf("%s-%d", host, os.Getpid())
		}
		gopts := []gossipbus.Option{
			gossipbus.WithHostname(gcfg.Name),
			gossipbus.WithListenOn(gcfg.BindAddr, gcfg.BindPort),
			gossipbus.WithLog(handler),
			gossipbus.WithMetricLabels(labels),
			gossipbus.WithNeighbours(gcfg.Neighbours),
		}
		if gcfg.Local {
			gopts = append(gopts, gossipbus.WithLocalNetwork())
		}
		gb, err := gossipbus.Create(gopts...)
		if err != nil {
			return nil, err
		}
		if len(gcfg.Neighbours) > 0 {
			if err := gb.Join(); err != nil {
				_ = gb.Close()
				return nil, err
			}
		}
		return gb, nil

	case BusP2P:
		popts := cfg.Bus.P2P
		popts.Logger = slog.New(handler)
		return p2pbus.New(ctx, popts)

	case BusRedis:
		rcfg := cfg.Bus.Redis
		return redisbus.New(rcfg.Addr, rcfg.Password, rcfg.DB, redisbus.WithPrefix(rcfg.Prefix)), nil
	}
	return nil, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
}

func (env *environment) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	env.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		env.logger.Info("serving metrics", "addr", addr)
		if err := env.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func (env *environment) close() {
	if env.rt != nil {
		if err := env.rt.Shutdown(); err != nil {
			env.logger.Warn("runtime shutdown", "error", err)
		}
	}
	if env.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.metrics.Shutdown(ctx)
	}
	if err := env.ps.Close(); err != nil {
		env.logger.Warn("bus close", "error", err)
	}
}

// readDescriptor reads a descriptor file, or stdin for "-".
func readDescriptor(path string, stdin io.Reader) (string, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read descriptor: %w", err)
	}
	return string(raw), nil
}

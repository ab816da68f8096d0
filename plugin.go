package sentry_transport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

const PluginName = "sentry_transport"

// Plugin wires the transport into the RoadRunner container.
type Plugin struct {
	config    *Config
	logger    *zap.Logger
	limiter   *RateLimiter
	metrics   *metricsCollector
	transport *Transport

	// Lifecycle
	stopCh chan struct{}
	doneCh chan struct{}
}

// Configurer interface for config plugin
type Configurer interface {
	UnmarshalKey(name string, out interface{}) error
	Has(name string) bool
}

// Logger interface for logger plugin
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Init initializes the plugin
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("sentry_transport_init")

	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	config := &Config{}
	if err := cfg.UnmarshalKey(PluginName, config); err != nil {
		return errors.E(op, err)
	}

	config.InitDefaults()
	if err := config.Validate(); err != nil {
		return errors.E(op, err)
	}

	if !config.Enabled {
		return errors.E(op, errors.Disabled)
	}

	p.config = config
	p.logger = log.NamedLogger(PluginName)
	p.limiter = NewRateLimiter(p.logger)
	p.metrics = newMetricsCollector()

	p.transport = NewTransport()
	serializer := &EnvelopeSerializer{Compress: !config.Transport.DisableCompression}
	if err := p.transport.Configure(config, serializer, p.limiter, p.metrics, p.logger); err != nil {
		return errors.E(op, err)
	}

	if config.DSN == "" {
		p.logger.Warn("no DSN configured, events will be acknowledged but not transmitted")
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("sentry transport plugin initialized",
		zap.Bool("dsn_configured", config.DSN != ""),
		zap.Duration("timeout", config.Transport.Timeout),
		zap.Duration("connect_timeout", config.Transport.ConnectTimeout))

	return nil
}

// Serve starts the plugin. There is no queue to run; the only background
// concern is the periodic rate-limit hygiene sweep.
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.config == nil {
		errCh <- errors.E(errors.Op("sentry_transport_serve"), errors.Str("plugin not initialized"))
		return errCh
	}

	go func() {
		defer close(p.doneCh)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go p.cleanupRoutine(ctx)

		p.logger.Info("sentry transport plugin started")

		<-p.stopCh

		p.logger.Info("sentry transport plugin stopping")
		p.transport.Close(0)
	}()

	return errCh
}

// Stop stops the plugin
func (p *Plugin) Stop(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
	}

	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		p.logger.Warn("plugin stop timed out")
		return ctx.Err()
	}
}

// Name returns the plugin name
func (p *Plugin) Name() string {
	return PluginName
}

// RPC returns the RPC interface
func (p *Plugin) RPC() interface{} {
	return NewRPC(p.transport, p.limiter, p.logger)
}

// Provides returns the dependencies this plugin provides
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*Transporter)(nil), p.Transport),
	}
}

// MetricsCollector exposes the transport counters to the metrics plugin.
func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{p.metrics}
}

// Transport returns the transport interface
func (p *Plugin) Transport() Transporter {
	return p.transport
}

// cleanupRoutine periodically drops expired rate-limit entries.
func (p *Plugin) cleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.limiter.CleanupExpired()
		}
	}
}

// Transporter is the send surface other plugins consume.
type Transporter interface {
	Send(event *Event) (SendOutcome, error)
	Close(timeout time.Duration) bool
}

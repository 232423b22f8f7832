// Package events publishes domain events to NATS subjects.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/JaimeStill/triage/pkg/lifecycle"
	"github.com/JaimeStill/triage/pkg/resilience"
)

// ErrNotConnected is returned when publishing before the connection is established.
var ErrNotConnected = errors.New("events: not connected")

// Publisher emits JSON events on subjects scoped by the configured prefix.
type Publisher interface {
	// Start registers connect and drain hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Publish marshals payload and sends it on "{prefix}.{event}".
	Publish(ctx context.Context, event string, payload any) error
}

// New returns a NATS publisher, or a no-op publisher when cfg has no URL.
// A nil executor publishes without retries.
func New(cfg *Config, exec *resilience.Executor, logger *slog.Logger) Publisher {
	logger = logger.With("system", "events")
	if !cfg.Enabled() {
		return &noop{logger: logger}
	}
	return &natsPublisher{
		cfg:      *cfg,
		executor: exec,
		logger:   logger,
	}
}

type natsPublisher struct {
	cfg      Config
	executor *resilience.Executor
	logger   *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
}

func (p *natsPublisher) Start(lc *lifecycle.Coordinator) error {
	p.logger.Info("starting event publisher", "url", p.cfg.URL)

	lc.OnStartup(func() error {
		conn, err := nats.Connect(
			p.cfg.URL,
			nats.Name(p.cfg.ClientName),
			nats.Timeout(p.cfg.ConnectTimeoutDuration()),
			nats.ReconnectWait(p.cfg.ReconnectWaitDuration()),
			nats.MaxReconnects(p.cfg.MaxReconnects),
			nats.RetryOnFailedConnect(true),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				p.logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				p.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()

		p.logger.Info("event publisher connected")
		return nil
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.Drain(); err != nil {
			p.logger.Error("nats drain failed", "error", err)
			conn.Close()
			return
		}
		p.logger.Info("event publisher drained")
	})

	return nil
}

func (p *natsPublisher) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	subject := Subject(p.cfg.SubjectPrefix, event)

	call := func(context.Context) error {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()
		if conn == nil {
			return ErrNotConnected
		}
		if err := conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if p.executor == nil {
		return call(ctx)
	}
	return p.executor.Execute(ctx, "nats.publish", call, Classify)
}

type noop struct {
	logger *slog.Logger
}

func (n *noop) Start(*lifecycle.Coordinator) error {
	n.logger.Info("event publishing disabled")
	return nil
}

func (n *noop) Publish(ctx context.Context, event string, payload any) error {
	n.logger.Debug("event dropped", "event", event)
	return nil
}

// Subject joins prefix and event into a NATS subject.
func Subject(prefix, event string) string {
	if prefix == "" {
		return event
	}
	return prefix + "." + event
}

// Classify marks NATS connectivity failures as retryable.
func Classify(err error) resilience.ErrorClassification {
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.Transient(err)
}

// Package events delivers committed program events to observers: the
// process log and, when configured, a NATS subject tree.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// DefaultSubjectPrefix roots every published subject.
const DefaultSubjectPrefix = "scrape.events"

// ─── Log Publisher ──────────────────────────────────────────────────────────

// LogPublisher writes one log line per event.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher logs through l, or the standard logger when l is nil.
func NewLogPublisher(l *log.Logger) *LogPublisher {
	if l == nil {
		l = log.Default()
	}
	return &LogPublisher{logger: l}
}

// Publish logs e.
func (p *LogPublisher) Publish(_ context.Context, e domain.Event) error {
	p.logger.Printf("[events] %s account=%s signer=%s tx=%s %s",
		e.Type, e.Account, e.Signer, e.TxID, formatData(e.Data))
	metrics.EventsPublished.WithLabelValues("log", "ok").Inc()
	return nil
}

func formatData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}

// ─── NATS Publisher ─────────────────────────────────────────────────────────

// NATSPublisher publishes events as JSON to <prefix>.<event type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to url and returns a publisher rooted at prefix.
func DialNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("scrape"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATSPublisher(conn, prefix), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish sends e to its subject.
func (p *NATSPublisher) Publish(_ context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	subject := Subject(p.prefix, e.Type)
	if err := p.conn.Publish(subject, payload); err != nil {
		metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.EventsPublished.WithLabelValues("nats", "ok").Inc()
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Subject returns the namespaced subject for an event type. Dots in the
// type become subject tokens, so "task.created" under "scrape.events"
// becomes "scrape.events.task.created".
func Subject(prefix string, t domain.EventType) string {
	return strings.TrimSuffix(prefix, ".") + "." + string(t)
}

// ─── Fan-out ────────────────────────────────────────────────────────────────

// Multi publishes to every publisher, continuing past failures.
type Multi []domain.Publisher

// Publish delivers e to all sinks and joins their errors.
func (m Multi) Publish(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package events publishes document lifecycle events to NATS with
// OpenTelemetry trace propagation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// Subjects, relative to the configured prefix.
const (
	SubjectIngested = "documents.ingested"
	SubjectDegraded = "documents.degraded"
	SubjectDeleted  = "documents.deleted"
)

// DocumentEvent is the payload of every lifecycle event.
type DocumentEvent struct {
	ProjectID  string    `json:"project_id"`
	DocumentID int64     `json:"document_id"`
	Filename   string    `json:"filename,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher sends DocumentEvents on subjects under a prefix.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher wraps an open connection. prefix may be empty.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix != "" && prefix[len(prefix)-1] != '.' {
		prefix += "."
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Publish serializes ev as JSON and publishes it on prefix+subject.
// Trace context from ctx is injected into the message headers.
func (p *Publisher) Publish(ctx context.Context, subject string, ev DocumentEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: p.prefix + subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// HealthCheck reports a closed or reconnecting connection.
func (p *Publisher) HealthCheck(context.Context) error {
	if status := p.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", status)
	}
	return nil
}

// Subscribe registers a handler that deserializes DocumentEvents.
// Trace context is extracted from the headers; malformed messages are dropped.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, DocumentEvent)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev DocumentEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, ev)
	})
}

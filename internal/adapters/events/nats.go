// Package events publishes job lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jobrunner/geotools/internal/domain"
)

// DefaultSubject is the subject job-finished events are published on.
const DefaultSubject = "geotools.jobs.finished"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements EventPublisher on NATS.
type Publisher struct {
	conn    Conn
	nc      *nats.Conn
	subject string
}

// Connect dials NATS and returns a publisher for subject.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("geotools"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(nc, subject)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// PublishJobFinished implements EventPublisher.
func (p *Publisher) PublishJobFinished(_ context.Context, ev domain.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, b)
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

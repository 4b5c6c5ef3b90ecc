package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
)

const DefaultSubject = "pulse.audit"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards audit events to NATS as JSON, one subject per action
// under the configured prefix (pulse.audit.sandbox_violation, ...).
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// Connect dials url with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("compliance-pulse"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

type envelope struct {
	EventType string       `json:"event_type"`
	Event     *audit.Event `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
}

func (p *Publisher) Publish(_ context.Context, e *audit.Event) error {
	data, err := json.Marshal(envelope{
		EventType: "audit." + string(e.Action),
		Event:     e,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	subject := p.subject + "." + string(e.Action)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	p.logger.Debug("audit event published", "subject", subject, "event_id", e.ID)
	return nil
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"sagaforge/logging"
)

// NATSForwarderConfig configures a NATSForwarder. Zero-value fields are
// replaced with their documented defaults by NewNATSForwarder.
type NATSForwarderConfig struct {
	Conn          *nats.Conn
	SubjectPrefix string // default "saga.events."
	Logger        logging.ILogger
}

// NATSForwarder subscribes to an in-process EventBus and republishes every
// event to a JetStream subject keyed by saga id, so an external
// dashboard/observability pipeline can follow along without the engine
// itself depending on NATS for correctness: the synchronous in-process bus
// remains the source of truth for subscriber delivery.
type NATSForwarder struct {
	js     nats.JetStreamContext
	prefix string
	logger logging.ILogger
}

// NewNATSForwarder constructs a forwarder bound to cfg.Conn's JetStream
// context. Returns an error if the JetStream context cannot be obtained.
func NewNATSForwarder(cfg NATSForwarderConfig) (*NATSForwarder, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "saga.events."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}
	js, err := cfg.Conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("nats forwarder: jetstream context: %w", err)
	}
	return &NATSForwarder{js: js, prefix: cfg.SubjectPrefix, logger: cfg.Logger}, nil
}

// Subscriber returns the EventBus Subscriber this forwarder registers.
// Publish errors are logged, never propagated — a down or misconfigured
// JetStream must not affect saga progress.
func (f *NATSForwarder) Subscriber() Subscriber {
	return func(ctx context.Context, e Event) {
		payload, err := json.Marshal(forwardedEvent{
			Type:      string(e.Type),
			SagaID:    e.SagaID,
			TaskID:    e.TaskID,
			Data:      e.Data,
			Err:       errString(e.Err),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			f.logger.Warn(ctx, "nats forwarder: marshal event failed", logging.Error(err))
			return
		}

		subject := f.prefix + e.SagaID
		if _, err := f.js.Publish(subject, payload); err != nil {
			f.logger.Warn(ctx, "nats forwarder: publish failed",
				logging.String("subject", subject),
				logging.Error(err),
			)
		}
	}
}

type forwardedEvent struct {
	Type      string    `json:"type"`
	SagaID    string    `json:"sagaId"`
	TaskID    string    `json:"taskId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher forwards audit envelopes to NATS JetStream for off-system
// indexers. Subjects follow factor.audit.{event_type}. The publish channel
// is drained best-effort: persistence (Postgres) is the durable log, so a
// failed publish is logged and skipped rather than retried.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan Envelope
	log       zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan Envelope, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run drains the input channel until ctx is cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().
					Int64("sequence", env.Sequence).
					Str("event_type", env.EventType.String()).
					Err(err).
					Msg("audit publish failed; indexers can rebuild from the event log")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("factor.audit.%s", env.EventType)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureAuditStream creates the audit stream if missing.
func EnsureAuditStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "FACTOR_AUDIT",
		Subjects:  []string{"factor.audit.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create audit stream: %w", err)
	}
	return nil
}

// Package feed consumes payment notifications from the receivable registry
// over NATS JetStream and triggers reconciliation. Notifications are a
// freshness optimization only: reconciliation is an idempotent scan, so a
// lost or duplicated message never corrupts fund state.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	StreamName      = "FACTOR_PAYMENTS"
	SubjectPrefix   = "factor.payments"
	consumerName    = "factorvault-payments"
	consumerAckWait = 30 * time.Second
)

// PaymentNotice is the registry's wire message for a debtor payment.
type PaymentNotice struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// Reconciler is the part of the engine the listener drives.
type Reconciler interface {
	ReconcileActivePaidInvoices(actor uuid.UUID) ([]uuid.UUID, error)
}

// Listener owns the durable consumer and forwards notices to the engine.
type Listener struct {
	js         jetstream.JetStream
	reconciler Reconciler

	// actor recorded on audit events produced by feed-triggered
	// reconciliation.
	actor uuid.UUID

	consumer jetstream.ConsumeContext
	log      zerolog.Logger
}

func NewListener(js jetstream.JetStream, reconciler Reconciler, actor uuid.UUID, log zerolog.Logger) *Listener {
	return &Listener{
		js:         js,
		reconciler: reconciler,
		actor:      actor,
		log:        log,
	}
}

// Start creates the durable consumer and begins processing. Explicit ACK;
// failed reconciles NAK for redelivery.
func (l *Listener) Start(ctx context.Context) error {
	consumer, err := l.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       consumerAckWait,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		l.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}
	l.consumer = cc

	l.log.Info().Str("subject", SubjectPrefix+".>").Msg("payment feed subscribed")
	return nil
}

func (l *Listener) handle(msg jetstream.Msg) {
	var notice PaymentNotice
	if err := json.Unmarshal(msg.Data(), &notice); err != nil {
		// Malformed notices are dropped; redelivery would not fix them.
		l.log.Error().Err(err).Str("subject", msg.Subject()).Msg("malformed payment notice")
		msg.Ack()
		return
	}

	settled, err := l.reconciler.ReconcileActivePaidInvoices(l.actor)
	if err != nil {
		l.log.Error().Err(err).Msg("reconcile after payment notice failed")
		msg.Nak()
		return
	}

	l.log.Debug().
		Str("invoice_id", notice.InvoiceID.String()).
		Int64("amount", notice.Amount).
		Int("settled", len(settled)).
		Msg("payment notice processed")
	msg.Ack()
}

// Stop gracefully stops the consumer.
func (l *Listener) Stop() {
	if l.consumer != nil {
		l.consumer.Stop()
	}
}

// EnsurePaymentStream creates the payment notification stream if missing.
func EnsurePaymentStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

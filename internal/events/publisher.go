package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// jetStream is the slice of nats.JetStreamContext the publisher needs.
// Narrowed to an interface so tests can stand in for the broker.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher hands registration events to JetStream. A publish is successful
// only once the server acknowledges durable acceptance; transient failures
// are retried with exponential backoff up to MaxRetries additional attempts.
type Publisher struct {
	js         jetStream
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

func NewPublisher(js nats.JetStreamContext, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Publisher {
	return newPublisher(js, maxRetries, backoff, logger)
}

func newPublisher(js jetStream, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Publisher {
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Publisher{js: js, maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// PublishRegistered emits the event with the patient identifier as the
// ordering key and the event ID as the broker dedupe key. On retry
// exhaustion the delivery failure is returned to the caller, which absorbs
// it; the registration itself is never rolled back over a lost event.
func (p *Publisher) PublishRegistered(ctx context.Context, ev PatientRegistered) error {
	msg := &nats.Msg{
		Subject: Subject(ev.PatientID),
		Data:    ev.Marshal(),
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		_, err := p.js.PublishMsg(msg, nats.MsgId(ev.ID()), nats.Context(ctx))
		if err == nil {
			p.logger.Debug().
				Str("patient_id", ev.PatientID).
				Str("event_id", ev.ID()).
				Msg("event published")
			return nil
		}
		lastErr = err
		p.logger.Warn().Err(err).
			Str("patient_id", ev.PatientID).
			Int("attempt", attempt+1).
			Msg("event publish attempt failed")
	}

	return fmt.Errorf("publish %s after %d attempts: %w", ev.ID(), p.maxRetries+1, lastErr)
}

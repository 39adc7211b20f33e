// Package notify is the downstream consumer of registration events. It
// reads, it never writes back: the orchestrator's data is not touched from
// here, and a failed notification only delays the event, never mutates it.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/events"
)

// Sender turns registration events into welcome notifications. The actual
// delivery channel (mail, SMS) sits behind this type; the current
// implementation records the notification in the structured log.
type Sender struct {
	logger zerolog.Logger
}

func NewSender(logger zerolog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Handle processes one event. Idempotence above this layer (the subscriber
// dedupe set) means a duplicate delivery will not notify twice.
func (s *Sender) Handle(ctx context.Context, ev events.PatientRegistered) error {
	if ev.Email == "" {
		return fmt.Errorf("event %s has no email to notify", ev.ID())
	}

	s.logger.Info().
		Str("patient_id", ev.PatientID).
		Str("email", ev.Email).
		Time("registered_at", ev.EmittedAt).
		Msgf("welcome notification sent to %s", ev.Name)
	return nil
}

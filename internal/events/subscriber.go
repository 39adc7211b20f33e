package events

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Handler processes one registration event. Returning an error leaves the
// message unacknowledged so the broker redelivers it.
type Handler func(ctx context.Context, ev PatientRegistered) error

// Subscriber consumes registration events at-least-once through a durable
// JetStream consumer. Delivery may duplicate; processing is made idempotent
// by a bounded in-memory dedupe set keyed on the event ID.
type Subscriber struct {
	js      nats.JetStreamContext
	durable string
	handler Handler
	logger  zerolog.Logger
	seen    *dedupeSet
	sub     *nats.Subscription
}

func NewSubscriber(js nats.JetStreamContext, durable string, handler Handler, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:      js,
		durable: durable,
		handler: handler,
		logger:  logger,
		seen:    newDedupeSet(10000),
	}
}

// Start begins consuming. Acks are explicit: a message is acknowledged only
// after the handler succeeds (or the event was already processed); handler
// failure leaves it for redelivery, never a silent drop.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.js.Subscribe(SubjectPrefix+".>", func(m *nats.Msg) {
		if s.consume(ctx, m.Data) {
			if err := m.Ack(); err != nil {
				s.logger.Warn().Err(err).Msg("ack failed")
			}
		} else {
			if err := m.Nak(); err != nil {
				s.logger.Warn().Err(err).Msg("nak failed")
			}
		}
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
	)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Stop drains the subscription.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

// consume reports whether the message should be acknowledged.
func (s *Subscriber) consume(ctx context.Context, data []byte) bool {
	ev, err := Unmarshal(data)
	if err != nil {
		// A payload that does not decode never will; terminate it rather
		// than redeliver forever.
		s.logger.Error().Err(err).Msg("dropping undecodable event")
		return true
	}

	if s.seen.contains(ev.ID()) {
		s.logger.Debug().Str("event_id", ev.ID()).Msg("duplicate delivery ignored")
		return true
	}

	if err := s.handler(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_id", ev.ID()).
			Msg("event handling failed, leaving for redelivery")
		return false
	}

	s.seen.add(ev.ID())
	return true
}

// dedupeSet is a fixed-capacity set with FIFO eviction.
type dedupeSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	cap   int
}

func newDedupeSet(capacity int) *dedupeSet {
	return &dedupeSet{
		ids: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

func (d *dedupeSet) contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok
}

func (d *dedupeSet) add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.ids, oldest)
	}
	d.ids[id] = struct{}{}
	d.order = append(d.order, id)
}

package events

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testSubscriber(handler Handler) *Subscriber {
	return NewSubscriber(nil, "test-durable", handler, zerolog.Nop())
}

func TestConsumeAcksAndHandlesOnce(t *testing.T) {
	var handled []PatientRegistered
	sub := testSubscriber(func(ctx context.Context, ev PatientRegistered) error {
		handled = append(handled, ev)
		return nil
	})

	data := sampleEvent().Marshal()
	if !sub.consume(context.Background(), data) {
		t.Error("want ack for handled event")
	}
	if len(handled) != 1 {
		t.Fatalf("want 1 handled event, got %d", len(handled))
	}
	if handled[0].PatientID != "pat-1" {
		t.Errorf("unexpected event %+v", handled[0])
	}
}

func TestConsumeDuplicateDeliveryProcessedOnce(t *testing.T) {
	// At-least-once delivery may replay the same emission; the handler must
	// observe it exactly once while both deliveries are acknowledged.
	var count int
	sub := testSubscriber(func(ctx context.Context, ev PatientRegistered) error {
		count++
		return nil
	})

	data := sampleEvent().Marshal()
	if !sub.consume(context.Background(), data) {
		t.Error("want ack for first delivery")
	}
	if !sub.consume(context.Background(), data) {
		t.Error("want ack for duplicate delivery")
	}
	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
}

func TestConsumeHandlerFailureLeavesForRedelivery(t *testing.T) {
	fail := true
	var count int
	sub := testSubscriber(func(ctx context.Context, ev PatientRegistered) error {
		count++
		if fail {
			return errors.New("mail relay down")
		}
		return nil
	})

	data := sampleEvent().Marshal()
	if sub.consume(context.Background(), data) {
		t.Error("failed event must not be acknowledged")
	}

	// A failed event is not in the dedupe set, so redelivery retries it.
	fail = false
	if !sub.consume(context.Background(), data) {
		t.Error("want ack once the handler succeeds")
	}
	if count != 2 {
		t.Errorf("handler ran %d times, want 2", count)
	}
}

func TestConsumeUndecodableEventTerminated(t *testing.T) {
	var count int
	sub := testSubscriber(func(ctx context.Context, ev PatientRegistered) error {
		count++
		return nil
	})

	if !sub.consume(context.Background(), []byte{0xff, 0xff}) {
		t.Error("undecodable event must be acknowledged, not redelivered forever")
	}
	if count != 0 {
		t.Error("undecodable event reached the handler")
	}
}

func TestConsumeDistinctEmissionsBothHandled(t *testing.T) {
	var count int
	sub := testSubscriber(func(ctx context.Context, ev PatientRegistered) error {
		count++
		return nil
	})

	first := sampleEvent()
	second := sampleEvent()
	second.EmittedAt = first.EmittedAt.Add(time.Second) // same patient, new emission

	sub.consume(context.Background(), first.Marshal())
	sub.consume(context.Background(), second.Marshal())
	if count != 2 {
		t.Errorf("handler ran %d times, want 2", count)
	}
}

func TestDedupeSetEvictsOldest(t *testing.T) {
	d := newDedupeSet(3)
	for i := 0; i < 4; i++ {
		d.add("ev-" + strconv.Itoa(i))
	}
	if d.contains("ev-0") {
		t.Error("oldest entry not evicted")
	}
	for i := 1; i < 4; i++ {
		if !d.contains("ev-" + strconv.Itoa(i)) {
			t.Errorf("entry ev-%d missing", i)
		}
	}
}

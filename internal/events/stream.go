package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix is the subject space for registration events. The patient
	// identifier is the final token, which makes it the ordering key: NATS
	// preserves publish order per subject, so all events for one patient are
	// observed in emission order.
	SubjectPrefix = "patients.registered"

	// dedupeWindow is how long the broker remembers message IDs for
	// publish-side duplicate suppression.
	dedupeWindow = 10 * time.Minute
)

// Subject returns the publish subject for the given patient identifier.
func Subject(patientID string) string {
	return SubjectPrefix + "." + patientID
}

// Connect dials NATS with the standard client options used by every process
// in the system.
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

// EnsureStream creates the registration event stream if it does not exist
// yet. Both the publisher side and the worker call this at startup; whichever
// comes up first wins.
func EnsureStream(nc *nats.Conn, stream string) (nats.JetStreamContext, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.StreamInfo(stream)
	if err == nil {
		return js, nil
	}
	if err != nats.ErrStreamNotFound {
		return nil, fmt.Errorf("stream info %s: %w", stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       stream,
		Subjects:   []string{SubjectPrefix + ".>"},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Duplicates: dedupeWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}
	return js, nil
}

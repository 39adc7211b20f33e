package events

import (
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func sampleEvent() PatientRegistered {
	return PatientRegistered{
		PatientID: "pat-1",
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		Type:      TypePatientRegistered,
		EmittedAt: time.Unix(0, 1700000000000000000),
	}
}

func TestEventRoundTrip(t *testing.T) {
	in := sampleEvent()
	out, err := Unmarshal(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.PatientID != in.PatientID || out.Name != in.Name ||
		out.Email != in.Email || out.Type != in.Type {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if !out.EmittedAt.Equal(in.EmittedAt) {
		t.Errorf("emitted at %v != %v", out.EmittedAt, in.EmittedAt)
	}
}

func TestEventIDStableAcrossRoundTrip(t *testing.T) {
	in := sampleEvent()
	out, err := Unmarshal(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID() != in.ID() {
		t.Errorf("dedupe key changed across the wire: %q vs %q", out.ID(), in.ID())
	}
	if out.ID() != "pat-1:1700000000000000000" {
		t.Errorf("unexpected dedupe key %q", out.ID())
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	// An older consumer must keep decoding payloads from a newer producer.
	b := sampleEvent().Marshal()
	b = protowire.AppendTag(b, 12, protowire.BytesType)
	b = protowire.AppendString(b, "added later")
	b = protowire.AppendTag(b, 13, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	out, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal with unknown fields: %v", err)
	}
	if out.PatientID != "pat-1" || out.Email != "ada@example.com" {
		t.Errorf("known fields lost: %+v", out)
	}
}

func TestUnmarshalRejectsMissingPatientID(t *testing.T) {
	ev := sampleEvent()
	ev.PatientID = ""
	if _, err := Unmarshal(ev.Marshal()); err == nil {
		t.Error("want error for event without patient id")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("want error on undecodable payload")
	}
}

func TestSubjectCarriesPatientID(t *testing.T) {
	got := Subject("pat-1")
	if got != "patients.registered.pat-1" {
		t.Errorf("unexpected subject %q", got)
	}
}

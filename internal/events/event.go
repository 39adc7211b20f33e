// Package events carries the domain events the registration service emits
// and the transport glue for publishing and consuming them over NATS
// JetStream.
//
// Events travel as a fixed binary schema encoded with protobuf wire format.
// Schema evolution is additive-only: new fields get new numbers, existing
// numbers are never reused or retyped, and decoders skip numbers they do not
// know. Consumers deployed against an older schema keep working.
package events

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// TypePatientRegistered tags the registration event on the wire.
const TypePatientRegistered = "patient.registered"

// PatientRegistered is emitted once per successful registration. It is
// immutable after construction: corrections are new events, never edits.
type PatientRegistered struct {
	PatientID string
	Name      string
	Email     string
	Type      string
	EmittedAt time.Time
}

// Wire field numbers. Append-only.
const (
	fieldPatientID = 1
	fieldName      = 2
	fieldEmail     = 3
	fieldType      = 4
	fieldEmittedAt = 5 // unix nanoseconds, varint
)

// ID returns the dedupe key consumers and the broker use to collapse
// duplicate deliveries of the same emission.
func (e PatientRegistered) ID() string {
	return e.PatientID + ":" + strconv.FormatInt(e.EmittedAt.UnixNano(), 10)
}

// Marshal encodes the event to its wire form.
func (e PatientRegistered) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPatientID, protowire.BytesType)
	b = protowire.AppendString(b, e.PatientID)
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)
	b = protowire.AppendTag(b, fieldEmail, protowire.BytesType)
	b = protowire.AppendString(b, e.Email)
	b = protowire.AppendTag(b, fieldType, protowire.BytesType)
	b = protowire.AppendString(b, e.Type)
	b = protowire.AppendTag(b, fieldEmittedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.EmittedAt.UnixNano()))
	return b
}

// Unmarshal decodes an event from its wire form. Unknown field numbers are
// skipped so newer producers remain readable.
func Unmarshal(b []byte) (PatientRegistered, error) {
	var e PatientRegistered
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PatientRegistered{}, fmt.Errorf("decode event tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldPatientID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("decode patient id: %w", protowire.ParseError(n))
			}
			e.PatientID = v
			b = b[n:]
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("decode name: %w", protowire.ParseError(n))
			}
			e.Name = v
			b = b[n:]
		case num == fieldEmail && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("decode email: %w", protowire.ParseError(n))
			}
			e.Email = v
			b = b[n:]
		case num == fieldType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("decode type: %w", protowire.ParseError(n))
			}
			e.Type = v
			b = b[n:]
		case num == fieldEmittedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("decode emitted at: %w", protowire.ParseError(n))
			}
			e.EmittedAt = time.Unix(0, int64(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PatientRegistered{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if e.PatientID == "" {
		return PatientRegistered{}, fmt.Errorf("event missing patient id")
	}
	return e, nil
}

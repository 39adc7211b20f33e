// Package wire defines the binary request/reply contract between the
// registration orchestrator and the billing provisioning service. Encoding
// is protobuf wire format with append-only field numbers, same evolution
// rules as the event schema.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Status is the provisioning outcome. The caller retries anything except
// StatusInvalidArgument.
type Status uint32

const (
	StatusUnspecified Status = iota
	StatusOK
	StatusInvalidArgument
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNSPECIFIED"
	}
}

// Retryable reports whether a call that produced this status may be retried
// safely. Provisioning is idempotent per patient, so everything but a caller
// bug is retryable.
func (s Status) Retryable() bool {
	return s != StatusOK && s != StatusInvalidArgument
}

// ProvisionRequest asks for a billing account for a patient identity.
type ProvisionRequest struct {
	PatientID string
	Name      string
	Email     string
}

const (
	reqFieldPatientID = 1
	reqFieldName      = 2
	reqFieldEmail     = 3
)

func (r ProvisionRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, reqFieldPatientID, protowire.BytesType)
	b = protowire.AppendString(b, r.PatientID)
	b = protowire.AppendTag(b, reqFieldName, protowire.BytesType)
	b = protowire.AppendString(b, r.Name)
	b = protowire.AppendTag(b, reqFieldEmail, protowire.BytesType)
	b = protowire.AppendString(b, r.Email)
	return b
}

func UnmarshalRequest(b []byte) (ProvisionRequest, error) {
	var r ProvisionRequest
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == reqFieldPatientID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.PatientID = v
			return n, nil
		case num == reqFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Name = v
			return n, nil
		case num == reqFieldEmail && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Email = v
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return r, err
}

// ProvisionReply carries the allocated (or previously allocated) account.
type ProvisionReply struct {
	AccountID string
	Status    Status
	Message   string
}

const (
	repFieldAccountID = 1
	repFieldStatus    = 2
	repFieldMessage   = 3
)

func (r ProvisionReply) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, repFieldAccountID, protowire.BytesType)
	b = protowire.AppendString(b, r.AccountID)
	b = protowire.AppendTag(b, repFieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Status))
	b = protowire.AppendTag(b, repFieldMessage, protowire.BytesType)
	b = protowire.AppendString(b, r.Message)
	return b
}

func UnmarshalReply(b []byte) (ProvisionReply, error) {
	var r ProvisionReply
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == repFieldAccountID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.AccountID = v
			return n, nil
		case num == repFieldStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Status = Status(v)
			return n, nil
		case num == repFieldMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Message = v
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return r, err
}

// walk iterates the wire fields of b, delegating each to fn. fn returns the
// number of bytes it consumed from the field value, negative on parse error.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account maps to the billing_account table. One account per patient,
// allocated exactly once; replays of the provisioning call return the
// original row.
type Account struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AccountRepository owns billing account durability.
type AccountRepository interface {
	// CreateIfAbsent inserts the account unless one already exists for the
	// same patient identifier, and returns the surviving row either way.
	CreateIfAbsent(ctx context.Context, a *Account) (*Account, error)
	GetByPatientID(ctx context.Context, patientID string) (*Account, error)
}

package patient

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("patient already registered")
	// ErrValidation wraps client-caused input errors; never retried.
	ErrValidation = errors.New("invalid patient")
)

// Patient maps to the patient table. The ID is assigned on create and stable
// thereafter; it is the join key for billing provisioning and for every
// emitted event. Email is the unique contact field.
type Patient struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Email        string     `db:"email" json:"email"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	BirthDate    *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	RegisteredAt time.Time  `db:"registered_at" json:"registered_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Patient) validate() error {
	if p.FirstName == "" || p.LastName == "" {
		return errors.Join(ErrValidation, errors.New("first_name and last_name are required"))
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return errors.Join(ErrValidation, errors.New("a valid email is required"))
	}
	return nil
}

package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

const accountCols = `id, patient_id, name, email, active, created_at`

func (r *accountRepoPG) CreateIfAbsent(ctx context.Context, a *Account) (*Account, error) {
	a.ID = uuid.New()
	a.Active = true

	// patient_id carries a unique constraint; a replay hits DO NOTHING and
	// the follow-up read returns the original allocation.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO billing_account (id, patient_id, name, email, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO NOTHING`,
		a.ID, a.PatientID, a.Name, a.Email, a.Active,
	)
	if err != nil {
		return nil, err
	}

	return r.GetByPatientID(ctx, a.PatientID)
}

func (r *accountRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM billing_account WHERE patient_id = $1`, patientID)

	a := &Account{}
	err := row.Scan(&a.ID, &a.PatientID, &a.Name, &a.Email, &a.Active, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

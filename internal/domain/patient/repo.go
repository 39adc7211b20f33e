package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository owns patient durability. A successful Create means the record
// is committed and immediately readable (read-your-write); everything the
// orchestrator does after that point never rolls it back.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

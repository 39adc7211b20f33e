package patient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/billing/wire"
	"github.com/medreg/medreg/internal/events"
)

// ProvisioningStatus annotates a registration response with the billing
// outcome. A degraded registration is still a registration: the patient
// record is the system of record and is never rolled back over billing.
type ProvisioningStatus string

const (
	ProvisioningSucceeded ProvisioningStatus = "succeeded"
	ProvisioningDegraded  ProvisioningStatus = "degraded"
)

// Provisioner is the synchronous billing dependency. The implementation
// retries internally; by the time Provision returns an error the retry
// budget is spent.
type Provisioner interface {
	Provision(ctx context.Context, req wire.ProvisionRequest) (wire.ProvisionReply, error)
}

// Publisher is the event emission dependency. Returns only after the
// transport acknowledges durable acceptance, or after its retry budget is
// spent.
type Publisher interface {
	PublishRegistered(ctx context.Context, ev events.PatientRegistered) error
}

// RegistrationResult is what the API returns for a successful registration.
type RegistrationResult struct {
	Patient      *Patient           `json:"patient"`
	Provisioning ProvisioningStatus `json:"provisioning"`
	AccountID    string             `json:"account_id,omitempty"`
}

// Service orchestrates the registration saga: a durable local write, then a
// synchronous provisioning call and an event emission. The three steps have
// strictly decreasing criticality, and the failure policy follows that
// ordering instead of treating the operation as all-or-nothing.
type Service struct {
	patients    Repository
	provisioner Provisioner
	publisher   Publisher
	logger      zerolog.Logger
}

func NewService(patients Repository, provisioner Provisioner, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		patients:    patients,
		provisioner: provisioner,
		publisher:   publisher,
		logger:      logger,
	}
}

// Register runs the saga in strict order:
//
//  1. Validate and persist. Any failure here aborts the whole operation; no
//     downstream call is attempted.
//  2. After the commit, call provisioning and emit the registration event.
//     The two are independent of each other and run concurrently, each with
//     its own bounded retries. They run on a context detached from the
//     inbound request: once a registration is accepted, its side effects
//     complete even if the caller disconnects.
//  3. Provisioning exhaustion degrades the response; it never fails it.
//     Emission exhaustion is logged as a permanent delivery failure.
func (s *Service) Register(ctx context.Context, p *Patient) (*RegistrationResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}

	result := &RegistrationResult{Patient: p, Provisioning: ProvisioningSucceeded}

	// The record is committed; nothing below may cancel with the caller.
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		reply, err := s.provisioner.Provision(detached, wire.ProvisionRequest{
			PatientID: p.ID.String(),
			Name:      p.FullName(),
			Email:     p.Email,
		})
		if err != nil {
			result.Provisioning = ProvisioningDegraded
			s.logger.Error().Err(err).
				Str("patient_id", p.ID.String()).
				Msg("billing provisioning failed, registration degraded")
			return
		}
		result.AccountID = reply.AccountID
	}()

	go func() {
		defer wg.Done()
		ev := events.PatientRegistered{
			PatientID: p.ID.String(),
			Name:      p.FullName(),
			Email:     p.Email,
			Type:      events.TypePatientRegistered,
			EmittedAt: time.Now().UTC(),
		}
		if err := s.publisher.PublishRegistered(detached, ev); err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", p.ID.String()).
				Str("event_id", ev.ID()).
				Msg("event publish failed permanently")
		}
	}()

	wg.Wait()
	return result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if err := p.validate(); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

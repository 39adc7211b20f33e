package billing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/billing/wire"
)

var ErrAccountNotFound = errors.New("billing account not found")

// Service allocates billing accounts. Provision is idempotent per patient
// identifier: a second call with the same identifier is a no-op returning
// the prior allocation, never a duplicate account.
type Service struct {
	accounts AccountRepository
	logger   zerolog.Logger
}

func NewService(accounts AccountRepository, logger zerolog.Logger) *Service {
	return &Service{accounts: accounts, logger: logger}
}

func (s *Service) Provision(ctx context.Context, req wire.ProvisionRequest) wire.ProvisionReply {
	if req.PatientID == "" || req.Email == "" {
		return wire.ProvisionReply{
			Status:  wire.StatusInvalidArgument,
			Message: "patient_id and email are required",
		}
	}

	account, err := s.accounts.CreateIfAbsent(ctx, &Account{
		PatientID: req.PatientID,
		Name:      req.Name,
		Email:     req.Email,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", req.PatientID).
			Msg("account allocation failed")
		return wire.ProvisionReply{
			Status:  wire.StatusInternal,
			Message: "account storage failure",
		}
	}

	return wire.ProvisionReply{
		AccountID: account.ID.String(),
		Status:    wire.StatusOK,
	}
}

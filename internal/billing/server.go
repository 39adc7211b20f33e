package billing

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/billing/wire"
)

// Server exposes the provisioning operation over NATS request/reply. All
// billing-server replicas join one queue group, so each request is handled
// exactly once by whichever replica wins it.
type Server struct {
	nc      *nats.Conn
	subject string
	svc     *Service
	logger  zerolog.Logger
	sub     *nats.Subscription
}

func NewServer(nc *nats.Conn, subject string, svc *Service, logger zerolog.Logger) *Server {
	return &Server{nc: nc, subject: subject, svc: svc, logger: logger}
}

func (s *Server) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, "billing", func(m *nats.Msg) {
		s.handle(ctx, m)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info().Str("subject", s.subject).Msg("provisioning server listening")
	return nil
}

func (s *Server) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Server) handle(ctx context.Context, m *nats.Msg) {
	req, err := wire.UnmarshalRequest(m.Data)

	var reply wire.ProvisionReply
	if err != nil {
		s.logger.Warn().Err(err).Msg("undecodable provisioning request")
		reply = wire.ProvisionReply{Status: wire.StatusInvalidArgument, Message: "undecodable request"}
	} else {
		reply = s.svc.Provision(ctx, req)
	}

	if err := m.Respond(reply.Marshal()); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", req.PatientID).Msg("reply send failed")
	}
}

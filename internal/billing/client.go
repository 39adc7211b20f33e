package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/billing/wire"
)

var (
	// ErrInvalidArgument means the provisioning service rejected the request
	// as malformed. Never retried: replaying a bad request cannot fix it.
	ErrInvalidArgument = errors.New("provisioning rejected request")

	// ErrUnavailable means every attempt failed with a retryable error.
	ErrUnavailable = errors.New("provisioning unavailable")
)

// requester is the slice of *nats.Conn the client needs, narrowed for tests.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client calls the provisioning service synchronously. Each attempt is
// bounded by the configured timeout; retryable failures back off
// exponentially. Retries are safe because provisioning is idempotent per
// patient identifier.
type Client struct {
	nc         requester
	subject    string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

func NewClient(nc *nats.Conn, subject string, timeout time.Duration, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Client {
	return newClient(nc, subject, timeout, maxRetries, backoff, logger)
}

func newClient(nc requester, subject string, timeout time.Duration, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Client{nc: nc, subject: subject, timeout: timeout, maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// Provision requests a billing account for the patient. On success the reply
// carries the account identifier; on ErrInvalidArgument the request was
// rejected and must not be replayed; any other error means retries were
// exhausted against an unreachable or failing service.
func (c *Client) Provision(ctx context.Context, req wire.ProvisionRequest) (wire.ProvisionReply, error) {
	data := req.Marshal()

	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return wire.ProvisionReply{}, ctx.Err()
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		msg, err := c.nc.RequestWithContext(attemptCtx, c.subject, data)
		cancel()
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).
				Str("patient_id", req.PatientID).
				Int("attempt", attempt+1).
				Msg("provisioning call failed")
			continue
		}

		reply, err := wire.UnmarshalReply(msg.Data)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case reply.Status == wire.StatusOK:
			return reply, nil
		case !reply.Status.Retryable():
			return reply, fmt.Errorf("%w: %s", ErrInvalidArgument, reply.Message)
		default:
			lastErr = fmt.Errorf("provisioning returned %s: %s", reply.Status, reply.Message)
		}
	}

	return wire.ProvisionReply{}, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.maxRetries+1, lastErr)
}

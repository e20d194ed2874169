// ABOUTME: Dispatch pipeline: validate shape, authenticate, execute, respond
// ABOUTME: Emits exactly one envelope per known request, echoing the caller's nonce

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
	"github.com/2389/gigs-gateway/internal/validate"
)

// ErrUnknownOperation is returned for operation names missing from the
// registry. It is a caller contract violation and produces no envelope.
var ErrUnknownOperation = errors.New("unknown operation")

// Authenticator resolves bearer tokens to identities.
type Authenticator interface {
	Verify(ctx context.Context, tokenText string) (*store.Profile, error)
}

// Request is one inbound named request. Nonce is echoed verbatim.
type Request struct {
	Operation string
	Body      map[string]any
	Nonce     any
}

// NewRequest builds a Request, taking the nonce from the body.
func NewRequest(operation string, body map[string]any) Request {
	return Request{Operation: operation, Body: body, Nonce: body["nonce"]}
}

// Pipeline runs requests through the registry. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	registry *Registry
	auth     Authenticator
	logger   *slog.Logger
}

// NewPipeline creates a pipeline over an immutable registry.
func NewPipeline(registry *Registry, auth Authenticator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry: registry,
		auth:     auth,
		logger:   logger.With("component", "dispatch"),
	}
}

// Dispatch runs one request. For any registered operation it returns exactly
// one response whose nonce equals req.Nonce; unknown operations return
// ErrUnknownOperation and no response.
func (p *Pipeline) Dispatch(ctx context.Context, req Request) (Response, error) {
	op, ok := p.registry.Lookup(req.Operation)
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}

	logger := p.logger.With("op", op.Name)
	return envelope(p.run(ctx, logger, op, req.Body), req.Nonce), nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, op Operation, body map[string]any) (out Outcome) {
	if res := validate.Validate(body, op.Shape); !res.OK {
		logger.Warn("client input invalid", "field", res.Field, "reason", res.Message)
		return Outcome{ErrorCode: ErrRequestInvalid, Message: "request invalid", Data: res.Message}
	}
	logger.Debug("client request verification passed")

	call := &Call{Body: body}
	if op.RequiresIdentity {
		tokenText, _ := body["token"].(string)
		identity, err := p.auth.Verify(ctx, tokenText)
		if err != nil {
			reason := token.ReasonOf(err)
			logger.Warn("authentication failed", "reason", reason.String())
			if op.Rejections != nil {
				return op.Rejections(reason)
			}
			return DefaultRejection(reason)
		}
		call.Identity = identity
		logger = logger.With("identity", identity.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("operation panicked", "panic", r)
			out = Failure(ErrInternal, "internal error")
		}
	}()

	out = op.Handle(ctx, call)
	if out.ErrorCode != 0 {
		logger.Info("operation failed", "errorcode", out.ErrorCode, "message", out.Message)
	} else {
		logger.Info("operation complete", "successcode", out.SuccessCode)
	}
	return out
}

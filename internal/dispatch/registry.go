// ABOUTME: Immutable operation registry built once at startup
// ABOUTME: Each operation declares its request shape, auth requirement and handler

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
	"github.com/2389/gigs-gateway/internal/validate"
)

// Call is the input to an operation handler. Identity is set only for
// operations that require authentication.
type Call struct {
	Identity *store.Profile
	Body     map[string]any
}

// String returns a string field of the body, or "" when absent.
func (c *Call) String(name string) string {
	s, _ := c.Body[name].(string)
	return s
}

// Handler executes an operation's business logic.
type Handler func(ctx context.Context, call *Call) Outcome

// RejectionMapper turns a token rejection into the operation's failure outcome.
type RejectionMapper func(reason token.Reason) Outcome

// Operation declares one named request.
type Operation struct {
	Name string
	// Shape is checked before anything else runs.
	Shape validate.Shape
	// RequiresIdentity makes the pipeline verify body.token before Handle.
	RequiresIdentity bool
	// Rejections overrides DefaultRejection for this operation.
	Rejections RejectionMapper
	Handle     Handler
}

// Registry maps operation names to declarations. It is read-only after
// NewRegistry returns and safe for concurrent use.
type Registry struct {
	ops map[string]Operation
}

// NewRegistry validates and indexes the operations.
func NewRegistry(ops ...Operation) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if op.Name == "" {
			return nil, errors.New("operation has no name")
		}
		if op.Handle == nil {
			return nil, fmt.Errorf("operation %q has no handler", op.Name)
		}
		if _, dup := r.ops[op.Name]; dup {
			return nil, fmt.Errorf("operation %q registered twice", op.Name)
		}
		if op.RequiresIdentity && !declaresToken(op.Shape) {
			return nil, fmt.Errorf("operation %q requires identity but does not declare a required token", op.Name)
		}
		op.Shape = append(validate.Shape(nil), op.Shape...)
		r.ops[op.Name] = op
	}
	return r, nil
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func declaresToken(shape validate.Shape) bool {
	for _, f := range shape {
		if f.Name == "token" && f.Kind == validate.String && f.Required {
			return true
		}
	}
	return false
}

// DefaultRejection maps token rejections to response codes. Format failures
// are not distinguished from one another, and unavailable storage looks like
// any other authentication failure.
func DefaultRejection(reason token.Reason) Outcome {
	switch {
	case reason.IsFormat():
		return Failure(ErrTokenFormat, "token format validation failed")
	case reason == token.UnknownIdentity:
		return Failure(ErrUserNotExist, "user does not exist")
	default:
		return Failure(ErrAuth, "authentication failed")
	}
}

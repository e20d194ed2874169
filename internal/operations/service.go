// ABOUTME: Business operations served over the dispatch pipeline
// ABOUTME: Declares every operation's shape and auth requirement in one registry

package operations

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/gigs-gateway/internal/dispatch"
	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/validate"
)

// Tokens is the part of the token protocol the operations need.
type Tokens interface {
	Issue(identity *store.Identity) (string, error)
	Reauthenticate(ctx context.Context, tokenText string) (string, error)
}

// Service implements the gateway's operations against a store.
type Service struct {
	store  store.Store
	tokens Tokens
	logger *slog.Logger
	now    func() time.Time
	md     goldmark.Markdown

	// bcryptCost is lowered in tests
	bcryptCost int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for post dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// New creates a Service.
func New(st store.Store, tokens Tokens, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      st,
		tokens:     tokens,
		logger:     logger.With("component", "operations"),
		now:        time.Now,
		md:         goldmark.New(),
		bcryptCost: defaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	str = validate.String
	num = validate.Number
	arr = validate.Array
	obj = validate.Object
	req = validate.Required
)

// Operations declares every operation served by the gateway.
func (s *Service) Operations() []dispatch.Operation {
	return []dispatch.Operation{
		{
			Name: "register",
			Shape: validate.Shape{
				req("name", str), req("email", str), req("profession", str), req("talents", arr),
				req("uuid", str), req("pass", str), req("phone", str),
			},
			Handle: s.register,
		},
		{
			Name:   "login",
			Shape:  validate.Shape{req("email", str), req("password", str)},
			Handle: s.login,
		},
		{
			Name:   "reauth",
			Shape:  validate.Shape{req("token", str)},
			Handle: s.reauth,
		},
		{
			Name:             "whoami",
			Shape:            validate.Shape{req("token", str)},
			RequiresIdentity: true,
			Handle:           s.whoami,
		},
		{
			Name:   "emailhash",
			Shape:  validate.Shape{req("uuid", str)},
			Handle: s.emailHash,
		},
		{
			Name: "editprofile",
			Shape: validate.Shape{
				req("token", str), req("data", str), req("type", str),
			},
			RequiresIdentity: true,
			Handle:           s.editProfile,
		},
		{
			Name: "changepassword",
			Shape: validate.Shape{
				req("token", str), req("password", str), req("newpassword", str),
			},
			RequiresIdentity: true,
			Handle:           s.changePassword,
		},
		{
			Name: "post",
			Shape: validate.Shape{
				req("token", str), req("remarks", str), req("location", obj), req("comp", num),
				req("skills", arr), req("description", str), req("title", str), req("duration", num),
			},
			RequiresIdentity: true,
			Handle:           s.createPost,
		},
		{
			Name:             "delete",
			Shape:            validate.Shape{req("token", str), req("postid", str)},
			RequiresIdentity: true,
			Handle:           s.deletePost,
		},
		{
			Name: "edit",
			Shape: validate.Shape{
				req("token", str), req("data", str), req("type", str), req("postid", str),
			},
			RequiresIdentity: true,
			Handle:           s.editPost,
		},
		{
			Name:             "accept",
			Shape:            validate.Shape{req("token", str), req("postid", str)},
			RequiresIdentity: true,
			Handle:           s.acceptPost,
		},
		{
			Name:             "withdraw",
			Shape:            validate.Shape{req("token", str), req("postid", str)},
			RequiresIdentity: true,
			Handle:           s.withdrawPost,
		},
		{
			Name:   "searchbykey",
			Shape:  validate.Shape{req("keywords", arr)},
			Handle: s.searchByKey,
		},
		{
			Name:   "queryall",
			Handle: s.queryAll,
		},
	}
}

// Registry builds the immutable registry for all operations.
func (s *Service) Registry() (*dispatch.Registry, error) {
	return dispatch.NewRegistry(s.Operations()...)
}

// internalError logs err and returns the generic failure clients see.
func (s *Service) internalError(op string, err error) dispatch.Outcome {
	s.logger.Error("operation failed", "op", op, "error", err)
	return dispatch.Failure(dispatch.ErrInternal, "internal error")
}

// number reads a numeric body field decoded from JSON.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

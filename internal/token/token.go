// ABOUTME: HMAC-SHA256 bearer token issue/verify over per-identity secrets
// ABOUTME: Stateless: every verification recomputes the signature from the credential store

package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/gigs-gateway/internal/codec"
	"github.com/2389/gigs-gateway/internal/store"
)

// futureSkew bounds how far ahead of the local clock an issue time may be
// when a maximum token age is enforced.
const futureSkew = time.Minute

// Credentials is the read side of the credential store used for verification.
type Credentials interface {
	FindByIdentifier(ctx context.Context, id string) (*store.Identity, error)
}

// Protocol issues and verifies bearer tokens. It holds no per-token state and
// is safe for concurrent use.
type Protocol struct {
	creds         Credentials
	logger        *slog.Logger
	now           func() time.Time
	lookupTimeout time.Duration
	maxAge        time.Duration
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithClock overrides the wall clock used for issue times and freshness checks.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// WithLookupTimeout bounds each credential store lookup. Zero means no bound
// beyond the caller's context.
func WithLookupTimeout(d time.Duration) Option {
	return func(p *Protocol) { p.lookupTimeout = d }
}

// WithMaxAge rejects tokens issued longer ago than d. Zero disables the check.
func WithMaxAge(d time.Duration) Option {
	return func(p *Protocol) { p.maxAge = d }
}

// New creates a Protocol backed by the given credential store.
func New(creds Credentials, logger *slog.Logger, opts ...Option) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Protocol{
		creds:  creds,
		logger: logger.With("component", "token"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Issue mints a token for the identity using the current time.
func (p *Protocol) Issue(identity *store.Identity) (string, error) {
	if identity == nil || identity.ID == "" {
		return "", errors.New("issuing token: identity has no id")
	}
	if identity.Secret == "" {
		return "", errors.New("issuing token: identity has no secret")
	}

	issuedAt := p.now().Unix()
	sig, err := sign(identity.Secret, identity.ID, issuedAt)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	packed, err := codec.Serialize([]any{identity.ID, issuedAt, sig})
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return codec.EncodeText(packed), nil
}

// Verify resolves the identity a token was issued for. The returned profile
// never carries the secret or password hash.
func (p *Protocol) Verify(ctx context.Context, tokenText string) (*store.Profile, error) {
	identity, err := p.verify(ctx, tokenText)
	if err != nil {
		return nil, err
	}
	return identity.Public(), nil
}

// Reauthenticate verifies a token and echoes it back unchanged on success.
// Tokens are never rotated on reauthentication.
func (p *Protocol) Reauthenticate(ctx context.Context, tokenText string) (string, error) {
	if _, err := p.verify(ctx, tokenText); err != nil {
		return "", err
	}
	return tokenText, nil
}

func (p *Protocol) verify(ctx context.Context, tokenText string) (*store.Identity, error) {
	if !codec.ValidText(tokenText) {
		return nil, p.reject(BadEncoding, "", codec.ErrMalformedToken)
	}

	raw, err := codec.DecodeText(tokenText)
	if err != nil {
		return nil, p.reject(BadFraming, "", err)
	}

	fields, err := codec.Deserialize(raw)
	if err != nil {
		if errors.Is(err, codec.ErrUnexpectedShape) {
			return nil, p.reject(BadShape, "", err)
		}
		return nil, p.reject(BadFraming, "", err)
	}

	id, issuedAt, sig, err := parseFields(fields)
	if err != nil {
		return nil, p.reject(BadShape, "", err)
	}

	if p.maxAge > 0 {
		issued := time.Unix(issuedAt, 0)
		now := p.now()
		if now.Sub(issued) > p.maxAge || issued.Sub(now) > futureSkew {
			return nil, p.reject(Expired, id, fmt.Errorf("issued at %s", issued.UTC().Format(time.RFC3339)))
		}
	}

	identity, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, p.reject(UnknownIdentity, id, err)
		}
		return nil, p.reject(StoreUnavailable, id, err)
	}

	expected, err := sign(identity.Secret, id, issuedAt)
	if err != nil {
		return nil, p.reject(BadShape, id, err)
	}
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return nil, p.reject(BadSignature, id, nil)
	}

	p.logger.Debug("token verified", "identity", id)
	return identity, nil
}

func (p *Protocol) lookup(ctx context.Context, id string) (*store.Identity, error) {
	if p.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.lookupTimeout)
		defer cancel()
	}
	return p.creds.FindByIdentifier(ctx, id)
}

func (p *Protocol) reject(reason Reason, id string, cause error) *RejectedError {
	attrs := []any{"reason", reason.String()}
	if id != "" {
		attrs = append(attrs, "identity", id)
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	p.logger.Warn("token rejected", attrs...)
	return &RejectedError{Reason: reason, cause: cause}
}

// parseFields checks the decoded triple [id, issuedAt, signature].
func parseFields(fields []any) (id string, issuedAt int64, sig string, err error) {
	if len(fields) != 3 {
		return "", 0, "", fmt.Errorf("token has %d fields, want 3", len(fields))
	}

	id, ok := fields[0].(string)
	if !ok || id == "" {
		return "", 0, "", fmt.Errorf("identifier is %T, want non-empty string", fields[0])
	}

	issuedAt, ok = fields[1].(int64)
	if !ok {
		return "", 0, "", fmt.Errorf("issued-at is %T, want integer", fields[1])
	}

	sig, ok = fields[2].(string)
	if !ok {
		return "", 0, "", fmt.Errorf("signature is %T, want string", fields[2])
	}

	return id, issuedAt, sig, nil
}

// sign returns the lowercase hex HMAC-SHA256 of the framed [id, issuedAt] prefix.
func sign(secret, id string, issuedAt int64) (string, error) {
	prefix, err := codec.Serialize([]any{id, issuedAt})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(prefix)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ABOUTME: Account operations: register, login, reauth, whoami, emailhash, profile edits
// ABOUTME: Passwords are bcrypt hashed; each identity gets a random signing secret at registration

package operations

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/gigs-gateway/internal/dispatch"
	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
)

const defaultBcryptCost = bcrypt.DefaultCost

func (s *Service) register(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	secret, err := token.NewSecret()
	if err != nil {
		return s.internalError("register", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(call.String("pass")), s.bcryptCost)
	if err != nil {
		return s.internalError("register", err)
	}

	talents, _ := call.Body["talents"].([]any)
	identity := &store.Identity{
		ID:           call.String("uuid"),
		Email:        call.String("email"),
		Name:         call.String("name"),
		Phone:        call.String("phone"),
		Profession:   call.String("profession"),
		Talents:      talents,
		PasswordHash: string(hash),
		Secret:       secret,
		CreatedAt:    s.now(),
	}

	err = s.store.InsertIdentity(ctx, identity)
	if errors.Is(err, store.ErrIdentityExists) {
		s.logger.Warn("trying to insert existing user", "uuid", identity.ID)
		return dispatch.Failure(dispatch.ErrUserExists, "user exist")
	}
	if err != nil {
		return s.internalError("register", err)
	}

	s.logger.Info("new user inserted", "name", identity.Name, "uuid", identity.ID)
	return dispatch.Success(dispatch.OKUserCreated, "user created", nil)
}

func (s *Service) login(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	identity, err := s.store.FindByContactHandle(ctx, call.String("email"))
	if errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrUserNotExist, "user does not exist")
	}
	if err != nil {
		return s.internalError("login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(call.String("password"))); err != nil {
		s.logger.Warn("user password not match", "uuid", identity.ID)
		return dispatch.Failure(dispatch.ErrLogin, "login error")
	}

	tok, err := s.tokens.Issue(identity)
	if err != nil {
		return s.internalError("login", err)
	}

	s.logger.Info("user logged in", "uuid", identity.ID)
	return dispatch.Success(dispatch.OKLoggedIn, "user loggedin", tok)
}

// reauth echoes a still-valid token. A signature mismatch reads as a login error.
func (s *Service) reauth(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	tok, err := s.tokens.Reauthenticate(ctx, call.String("token"))
	if err != nil {
		reason := token.ReasonOf(err)
		switch {
		case reason.IsFormat():
			return dispatch.Failure(dispatch.ErrTokenFormat, "token format validation failed")
		case reason == token.UnknownIdentity:
			return dispatch.Failure(dispatch.ErrUserNotExist, "user does not exist")
		default:
			return dispatch.Failure(dispatch.ErrLogin, "login error")
		}
	}
	return dispatch.Success(dispatch.OKLoggedIn, "user loggedin", tok)
}

type whoamiView struct {
	*store.Profile
	EmailHash string `json:"emailhash"`
}

func (s *Service) whoami(_ context.Context, call *dispatch.Call) dispatch.Outcome {
	return dispatch.Success(dispatch.OKWhoami, "whoami query", whoamiView{
		Profile:   call.Identity,
		EmailHash: emailHash(call.Identity.Email),
	})
}

func (s *Service) emailHash(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	identity, err := s.store.FindByIdentifier(ctx, call.String("uuid"))
	if errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrUserNotExist, "user does not exist")
	}
	if err != nil {
		return s.internalError("emailhash", err)
	}
	return dispatch.Success(dispatch.OKEmailHash, "emailhash complete", emailHash(identity.Email))
}

func (s *Service) editProfile(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	field := call.String("type")
	err := s.store.UpdateFields(ctx, call.Identity.ID, map[string]string{field: call.String("data")})
	switch {
	case err == nil:
		s.logger.Info("user altered", "uuid", call.Identity.ID, "field", field)
		return dispatch.Success(dispatch.OKAlterComplete, "user altered", nil)
	case errors.Is(err, store.ErrImmutableField):
		return dispatch.Failure(dispatch.ErrAlterFailed, "user alter failed")
	case errors.Is(err, store.ErrIdentityExists):
		return dispatch.Failure(dispatch.ErrUserExists, "user exist")
	case errors.Is(err, store.ErrNotFound):
		return dispatch.Failure(dispatch.ErrUserNotExist, "user does not exist")
	default:
		return s.internalError("editprofile", err)
	}
}

// changePassword re-hashes the password and rotates the signing secret,
// revoking every token issued before the change. The response carries a
// fresh token.
func (s *Service) changePassword(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	identity, err := s.store.FindByIdentifier(ctx, call.Identity.ID)
	if errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrUserNotExist, "user does not exist")
	}
	if err != nil {
		return s.internalError("changepassword", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(call.String("password"))); err != nil {
		return dispatch.Failure(dispatch.ErrLogin, "login error")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(call.String("newpassword")), s.bcryptCost)
	if err != nil {
		return s.internalError("changepassword", err)
	}
	secret, err := token.NewSecret()
	if err != nil {
		return s.internalError("changepassword", err)
	}
	if err := s.store.UpdateCredentials(ctx, identity.ID, string(hash), secret); err != nil {
		return s.internalError("changepassword", err)
	}

	identity.PasswordHash = string(hash)
	identity.Secret = secret
	tok, err := s.tokens.Issue(identity)
	if err != nil {
		return s.internalError("changepassword", err)
	}

	s.logger.Info("password changed, tokens revoked", "uuid", identity.ID)
	return dispatch.Success(dispatch.OKAlterComplete, "password changed", tok)
}

func emailHash(email string) string {
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

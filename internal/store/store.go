// ABOUTME: Store interfaces and data types for gigs-gateway persistence
// ABOUTME: Defines Identity, Profile and Post plus the credential and post store contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrIdentityExists is returned when an identifier or contact handle is already registered
var ErrIdentityExists = errors.New("identity already exists")

// ErrAlreadyAccepted is returned when an identity accepts the same post twice
var ErrAlreadyAccepted = errors.New("post already accepted")

// ErrImmutableField is returned when an update names a field that may not be changed
var ErrImmutableField = errors.New("field is not mutable")

// Identity is the server-side record of a registered user. Secret and
// PasswordHash never leave the server; use Public for anything sent to a client.
type Identity struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Profession   string
	Talents      []any
	Accepted     []string
	PasswordHash string
	Secret       string
	CreatedAt    time.Time
}

// Profile is the public projection of an Identity.
type Profile struct {
	ID         string   `json:"uuid"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Profession string   `json:"profession"`
	Talents    []any    `json:"talents"`
	Accepted   []string `json:"accepted"`
}

// Public returns the identity without its secret material.
func (i *Identity) Public() *Profile {
	talents := i.Talents
	if talents == nil {
		talents = []any{}
	}
	accepted := i.Accepted
	if accepted == nil {
		accepted = []string{}
	}
	return &Profile{
		ID:         i.ID,
		Name:       i.Name,
		Email:      i.Email,
		Phone:      i.Phone,
		Profession: i.Profession,
		Talents:    talents,
		Accepted:   accepted,
	}
}

// Mutable profile columns accepted by UpdateFields.
var profileFields = map[string]string{
	"name":       "name",
	"email":      "email",
	"phone":      "phone",
	"profession": "profession",
}

// Post is a job posting.
type Post struct {
	ID          string         `json:"postid"`
	OwnerID     string         `json:"uuid"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Remarks     string         `json:"remarks"`
	Skills      []any          `json:"skills"`
	Comp        float64        `json:"comp"`
	Duration    float64        `json:"duration"`
	Location    map[string]any `json:"location"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"date"`
	EndDate     time.Time      `json:"endDate"`
	ExpiresAt   time.Time      `json:"expire"`
}

// Mutable post columns accepted by UpdatePostField.
var postFields = map[string]string{
	"title":       "title",
	"description": "description",
	"remarks":     "remarks",
}

// CredentialStore holds identities and their secrets.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, id string) (*Identity, error)
	FindByContactHandle(ctx context.Context, email string) (*Identity, error)
	// InsertIdentity fails with ErrIdentityExists if the id or email is taken.
	InsertIdentity(ctx context.Context, identity *Identity) error
	// UpdateFields changes mutable profile fields. id and secret are immutable here.
	UpdateFields(ctx context.Context, id string, fields map[string]string) error
	// RotateSecret replaces the signing secret, revoking every issued token.
	RotateSecret(ctx context.Context, id, secret string) error
	// UpdateCredentials replaces the password hash and the secret together.
	UpdateCredentials(ctx context.Context, id, passwordHash, secret string) error
}

// PostStore holds job posts, their keywords, and acceptances.
type PostStore interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	DeletePost(ctx context.Context, id, ownerID string) error
	UpdatePostField(ctx context.Context, id, ownerID, field, value string) error
	ListPosts(ctx context.Context) ([]*Post, error)
	SearchByKeywords(ctx context.Context, keywords []string) ([]*Post, error)
	AcceptPost(ctx context.Context, identityID, postID string) error
	WithdrawPost(ctx context.Context, identityID, postID string) error
}

// Store is everything the gateway persists.
type Store interface {
	CredentialStore
	PostStore
	Close() error
}

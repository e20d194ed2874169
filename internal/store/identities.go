// ABOUTME: Credential store methods for identities on SQLiteStore
// ABOUTME: Unique indexes on id and email make registration a single atomic insert

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// InsertIdentity stores a new identity. A duplicate id or email yields ErrIdentityExists.
func (s *SQLiteStore) InsertIdentity(ctx context.Context, identity *Identity) error {
	talents := identity.Talents
	if talents == nil {
		talents = []any{}
	}
	talentsJSON, err := json.Marshal(talents)
	if err != nil {
		return fmt.Errorf("marshaling talents: %w", err)
	}

	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO identities (id, email, name, phone, profession, talents_json, password_hash, secret, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Name,
		identity.Phone,
		identity.Profession,
		string(talentsJSON),
		identity.PasswordHash,
		identity.Secret,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Info("inserted identity", "id", identity.ID)
	return nil
}

// FindByIdentifier returns the identity with the given id, or ErrNotFound.
func (s *SQLiteStore) FindByIdentifier(ctx context.Context, id string) (*Identity, error) {
	return s.findIdentity(ctx, "id", id)
}

// FindByContactHandle returns the identity registered with the given email, or ErrNotFound.
func (s *SQLiteStore) FindByContactHandle(ctx context.Context, email string) (*Identity, error) {
	return s.findIdentity(ctx, "email", email)
}

func (s *SQLiteStore) findIdentity(ctx context.Context, column, value string) (*Identity, error) {
	query := `
		SELECT id, email, name, phone, profession, talents_json, password_hash, secret, created_at
		FROM identities
		WHERE ` + column + ` = ?
	`

	var identity Identity
	var talentsJSON, createdAtStr string

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&identity.ID,
		&identity.Email,
		&identity.Name,
		&identity.Phone,
		&identity.Profession,
		&talentsJSON,
		&identity.PasswordHash,
		&identity.Secret,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	if err := json.Unmarshal([]byte(talentsJSON), &identity.Talents); err != nil {
		return nil, fmt.Errorf("unmarshaling talents: %w", err)
	}
	identity.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	identity.Accepted, err = s.acceptedPosts(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	return &identity, nil
}

func (s *SQLiteStore) acceptedPosts(ctx context.Context, identityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id FROM accepted_jobs
		WHERE identity_id = ?
		ORDER BY accepted_at, post_id
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("querying accepted posts: %w", err)
	}
	defer rows.Close()

	accepted := []string{}
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("scanning accepted post: %w", err)
		}
		accepted = append(accepted, postID)
	}
	return accepted, rows.Err()
}

// UpdateFields changes mutable profile fields. Unknown or immutable fields
// yield ErrImmutableField; a missing identity yields ErrNotFound.
func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := profileFields[name]; !ok {
			return fmt.Errorf("%w: %s", ErrImmutableField, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, profileFields[name]+" = ?")
		args = append(args, fields[name])
	}
	args = append(args, id)

	query := `UPDATE identities SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("updating identity: %w", err)
	}

	return requireAffected(result)
}

// RotateSecret replaces the identity's signing secret.
func (s *SQLiteStore) RotateSecret(ctx context.Context, id, secret string) error {
	if secret == "" {
		return errors.New("rotating secret: empty secret")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE identities SET secret = ? WHERE id = ?`, secret, id)
	if err != nil {
		return fmt.Errorf("rotating secret: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Info("rotated identity secret", "id", id)
	return nil
}

// UpdateCredentials replaces the password hash and secret in one statement.
func (s *SQLiteStore) UpdateCredentials(ctx context.Context, id, passwordHash, secret string) error {
	if passwordHash == "" || secret == "" {
		return errors.New("updating credentials: empty password hash or secret")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = ?, secret = ? WHERE id = ?`,
		passwordHash, secret, id,
	)
	if err != nil {
		return fmt.Errorf("updating credentials: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Info("updated identity credentials", "id", id)
	return nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

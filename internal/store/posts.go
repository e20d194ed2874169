// ABOUTME: Post, keyword and job acceptance methods on SQLiteStore
// ABOUTME: Keywords are indexed per post for search and counted in a hit-rate table

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreatePost stores a post and its keywords in a single transaction.
func (s *SQLiteStore) CreatePost(ctx context.Context, post *Post) error {
	skills, err := json.Marshal(nonNilSlice(post.Skills))
	if err != nil {
		return fmt.Errorf("marshaling skills: %w", err)
	}
	location := post.Location
	if location == nil {
		location = map[string]any{}
	}
	locationJSON, err := json.Marshal(location)
	if err != nil {
		return fmt.Errorf("marshaling location: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, owner_id, title, description, remarks, skills_json, comp, duration,
			location_json, created_at, end_date, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		post.ID,
		post.OwnerID,
		post.Title,
		post.Description,
		post.Remarks,
		string(skills),
		post.Comp,
		post.Duration,
		string(locationJSON),
		post.CreatedAt.UTC().Format(time.RFC3339),
		post.EndDate.UTC().Format(time.RFC3339),
		post.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}

	for _, kw := range post.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_keywords (post_id, keyword) VALUES (?, ?)`, post.ID, kw,
		); err != nil {
			return fmt.Errorf("inserting post keyword: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keywords (keyword, hitrate) VALUES (?, 0) ON CONFLICT(keyword) DO NOTHING`, kw,
		); err != nil {
			return fmt.Errorf("inserting keyword: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing post: %w", err)
	}

	s.logger.Info("inserted post", "id", post.ID, "owner", post.OwnerID, "keywords", len(post.Tags))
	return nil
}

// GetPost returns a post by id, or ErrNotFound.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	posts, err := s.queryPosts(ctx, postColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return posts[0], nil
}

// DeletePost removes a post owned by ownerID. Missing or foreign posts yield ErrNotFound.
func (s *SQLiteStore) DeletePost(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Info("deleted post", "id", id)
	return nil
}

// UpdatePostField sets one mutable text field of a post owned by ownerID.
func (s *SQLiteStore) UpdatePostField(ctx context.Context, id, ownerID, field, value string) error {
	column, ok := postFields[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImmutableField, field)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE posts SET `+column+` = ? WHERE id = ? AND owner_id = ?`, value, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}
	return requireAffected(result)
}

// ListPosts returns every post, newest first.
func (s *SQLiteStore) ListPosts(ctx context.Context) ([]*Post, error) {
	return s.queryPosts(ctx, postColumns+` ORDER BY created_at DESC, id`)
}

// SearchByKeywords returns posts tagged with every one of the keywords,
// newest first, and bumps the hit rate of each searched keyword.
func (s *SQLiteStore) SearchByKeywords(ctx context.Context, keywords []string) ([]*Post, error) {
	args := make([]any, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		if !seen[kw] {
			seen[kw] = true
			args = append(args, kw)
		}
	}
	if len(args) == 0 {
		return []*Post{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	posts, err := s.queryPosts(ctx, postColumns+`
		WHERE id IN (
			SELECT post_id FROM post_keywords
			WHERE keyword IN (`+placeholders+`)
			GROUP BY post_id
			HAVING COUNT(DISTINCT keyword) = ?
		)
		ORDER BY created_at DESC, id`, append(args, len(args))...)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET hitrate = hitrate + 1 WHERE keyword IN (`+placeholders+`)`, args...,
	); err != nil {
		s.logger.Warn("failed to bump keyword hitrate", "error", err)
	}

	return posts, nil
}

// KeywordHitRate returns how often a keyword has been searched, or ErrNotFound.
func (s *SQLiteStore) KeywordHitRate(ctx context.Context, keyword string) (int, error) {
	var hits int
	err := s.db.QueryRowContext(ctx, `SELECT hitrate FROM keywords WHERE keyword = ?`, keyword).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying keyword: %w", err)
	}
	return hits, nil
}

// AcceptPost records that the identity took the job. The post must exist.
func (s *SQLiteStore) AcceptPost(ctx context.Context, identityID, postID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, postID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying post: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accepted_jobs (identity_id, post_id, accepted_at) VALUES (?, ?, ?)`,
		identityID, postID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyAccepted
		}
		return fmt.Errorf("accepting post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing acceptance: %w", err)
	}

	s.logger.Info("post accepted", "identity", identityID, "post", postID)
	return nil
}

// WithdrawPost removes an acceptance. ErrNotFound if the identity never accepted the post.
func (s *SQLiteStore) WithdrawPost(ctx context.Context, identityID, postID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM accepted_jobs WHERE identity_id = ? AND post_id = ?`, identityID, postID,
	)
	if err != nil {
		return fmt.Errorf("withdrawing post: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	s.logger.Info("post withdrawn", "identity", identityID, "post", postID)
	return nil
}

const postColumns = `
	SELECT id, owner_id, title, description, remarks, skills_json, comp, duration,
		location_json, created_at, end_date, expires_at
	FROM posts`

func (s *SQLiteStore) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	posts := []*Post{}
	for rows.Next() {
		var p Post
		var skillsJSON, locationJSON, createdAt, endDate, expiresAt string
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Remarks, &skillsJSON,
			&p.Comp, &p.Duration, &locationJSON, &createdAt, &endDate, &expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		if err := json.Unmarshal([]byte(skillsJSON), &p.Skills); err != nil {
			return nil, fmt.Errorf("unmarshaling skills: %w", err)
		}
		if err := json.Unmarshal([]byte(locationJSON), &p.Location); err != nil {
			return nil, fmt.Errorf("unmarshaling location: %w", err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if p.EndDate, err = time.Parse(time.RFC3339, endDate); err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		if p.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	rows.Close()

	for _, p := range posts {
		if p.Tags, err = s.postKeywords(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *SQLiteStore) postKeywords(ctx context.Context, postID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword FROM post_keywords WHERE post_id = ? ORDER BY keyword`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying post keywords: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		tags = append(tags, kw)
	}
	return tags, rows.Err()
}

func nonNilSlice(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

// ABOUTME: Tests for the SQLite identity store
// ABOUTME: Covers schema creation, uniqueness, lookups, field updates and secret rotation

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIdentity(id, email string) *Identity {
	return &Identity{
		ID:           id,
		Email:        email,
		Name:         "Test " + id,
		Phone:        "555-0100",
		Profession:   "carpenter",
		Talents:      []any{"framing", "roofing"},
		PasswordHash: "hash-" + id,
		Secret:       "secret-" + id,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestIdentity_InsertAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := testIdentity("u1", "u1@example.com")
	require.NoError(t, s.InsertIdentity(ctx, in))

	byID, err := s.FindByIdentifier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", byID.Email)
	assert.Equal(t, "secret-u1", byID.Secret)
	assert.Equal(t, []any{"framing", "roofing"}, byID.Talents)
	assert.Equal(t, []string{}, byID.Accepted)
	assert.True(t, in.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := s.FindByContactHandle(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
}

func TestIdentity_FindMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByContactHandle(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdentity_InsertDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertIdentity(ctx, testIdentity("u1", "u1@example.com")))

	err := s.InsertIdentity(ctx, testIdentity("u1", "other@example.com"))
	assert.ErrorIs(t, err, ErrIdentityExists, "duplicate id")

	err = s.InsertIdentity(ctx, testIdentity("u2", "u1@example.com"))
	assert.ErrorIs(t, err, ErrIdentityExists, "duplicate email")
}

func TestIdentity_ConcurrentRegistrationSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.InsertIdentity(ctx, testIdentity(fmt.Sprintf("u-%d", i), "same@example.com"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrIdentityExists)
	}
	assert.Equal(t, 1, wins)
}

func TestIdentity_PublicHidesSecrets(t *testing.T) {
	p := testIdentity("u1", "u1@example.com").Public()
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, []string{}, p.Accepted)
}

func TestIdentity_UpdateFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertIdentity(ctx, testIdentity("u1", "u1@example.com")))
	require.NoError(t, s.InsertIdentity(ctx, testIdentity("u2", "u2@example.com")))

	require.NoError(t, s.UpdateFields(ctx, "u1", map[string]string{"name": "Renamed", "phone": "555-0199"}))
	got, err := s.FindByIdentifier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "555-0199", got.Phone)

	err = s.UpdateFields(ctx, "u1", map[string]string{"secret": "stolen"})
	assert.ErrorIs(t, err, ErrImmutableField)

	err = s.UpdateFields(ctx, "u1", map[string]string{"id": "u9"})
	assert.ErrorIs(t, err, ErrImmutableField)

	err = s.UpdateFields(ctx, "u1", map[string]string{"email": "u2@example.com"})
	assert.ErrorIs(t, err, ErrIdentityExists)

	err = s.UpdateFields(ctx, "missing", map[string]string{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdentity_RotateSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertIdentity(ctx, testIdentity("u1", "u1@example.com")))
	require.NoError(t, s.RotateSecret(ctx, "u1", "fresh"))

	got, err := s.FindByIdentifier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Secret)

	assert.ErrorIs(t, s.RotateSecret(ctx, "missing", "fresh"), ErrNotFound)
	assert.Error(t, s.RotateSecret(ctx, "u1", ""))
}

func TestIdentity_UpdateCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertIdentity(ctx, testIdentity("u1", "u1@example.com")))
	require.NoError(t, s.UpdateCredentials(ctx, "u1", "new-hash", "new-secret"))

	got, err := s.FindByIdentifier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, "new-secret", got.Secret)
}

// ABOUTME: End-to-end tests for the operations over a real SQLite store and token protocol
// ABOUTME: Requests run through the dispatch pipeline exactly as the websocket transport sends them

package operations

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/gigs-gateway/internal/dispatch"
	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
)

type harness struct {
	store    *store.SQLiteStore
	tokens   *token.Protocol
	pipeline *dispatch.Pipeline
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gigs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{store: st, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h.tokens = token.New(st, nil)
	svc := New(st, h.tokens, nil,
		WithBcryptCost(bcrypt.MinCost),
		WithClock(func() time.Time { return h.now }),
	)
	reg, err := svc.Registry()
	require.NoError(t, err)
	h.pipeline = dispatch.NewPipeline(reg, h.tokens, nil)
	return h
}

func (h *harness) do(t *testing.T, op string, body map[string]any) dispatch.Response {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	resp, err := h.pipeline.Dispatch(context.Background(), dispatch.NewRequest(op, body))
	require.NoError(t, err)
	return resp
}

func registerBody(id, email string) map[string]any {
	return map[string]any{
		"name":       "Name " + id,
		"email":      email,
		"profession": "plumber",
		"talents":    []any{"pipes", "drains"},
		"uuid":       id,
		"pass":       "hunter2",
		"phone":      "555-0101",
	}
}

// signup registers an identity and logs it in, returning the token.
func (h *harness) signup(t *testing.T, id, email string) string {
	t.Helper()
	resp := h.do(t, "register", registerBody(id, email))
	require.Equal(t, dispatch.OKUserCreated, resp.SuccessCode, resp.Message)

	resp = h.do(t, "login", map[string]any{"email": email, "password": "hunter2"})
	require.Equal(t, dispatch.OKLoggedIn, resp.SuccessCode, resp.Message)
	tok, ok := resp.Data.(string)
	require.True(t, ok)
	return tok
}

func postBody(tok, description string) map[string]any {
	return map[string]any{
		"token":       tok,
		"remarks":     "bring tools",
		"location":    map[string]any{"lat": 12.5, "lng": 77.6},
		"comp":        float64(500),
		"skills":      []any{"pipes"},
		"description": description,
		"title":       "Fix the sink",
		"duration":    float64(3),
	}
}

func (h *harness) createPost(t *testing.T, tok, description string) string {
	t.Helper()
	resp := h.do(t, "post", postBody(tok, description))
	require.Equal(t, dispatch.OKPostCreated, resp.SuccessCode, resp.Message)
	data, ok := resp.Data.(map[string]string)
	require.True(t, ok)
	return data["postid"]
}

func TestRegistryDeclaresAllOperations(t *testing.T) {
	svc := New(nil, nil, nil)
	reg, err := svc.Registry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"register", "login", "reauth", "whoami", "emailhash", "editprofile", "changepassword",
		"post", "delete", "edit", "accept", "withdraw", "searchbykey", "queryall",
	}, reg.Names())
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, "register", registerBody("u1", "a@example.com"))
	assert.Equal(t, dispatch.StatusOK, resp.Code)
	assert.Equal(t, dispatch.OKUserCreated, resp.SuccessCode)
	assert.Zero(t, resp.ErrorCode)

	t.Run("duplicate uuid", func(t *testing.T) {
		resp := h.do(t, "register", registerBody("u1", "other@example.com"))
		assert.Equal(t, dispatch.ErrUserExists, resp.ErrorCode)
	})

	t.Run("duplicate email", func(t *testing.T) {
		resp := h.do(t, "register", registerBody("u2", "a@example.com"))
		assert.Equal(t, dispatch.ErrUserExists, resp.ErrorCode)
	})

	t.Run("login", func(t *testing.T) {
		resp := h.do(t, "login", map[string]any{"email": "a@example.com", "password": "hunter2"})
		require.Equal(t, dispatch.OKLoggedIn, resp.SuccessCode)
		profile, err := h.tokens.Verify(context.Background(), resp.Data.(string))
		require.NoError(t, err)
		assert.Equal(t, "u1", profile.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := h.do(t, "login", map[string]any{"email": "a@example.com", "password": "nope"})
		assert.Equal(t, dispatch.ErrLogin, resp.ErrorCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		resp := h.do(t, "login", map[string]any{"email": "ghost@example.com", "password": "hunter2"})
		assert.Equal(t, dispatch.ErrUserNotExist, resp.ErrorCode)
	})

	t.Run("missing field", func(t *testing.T) {
		body := registerBody("u3", "c@example.com")
		delete(body, "phone")
		resp := h.do(t, "register", body)
		assert.Equal(t, dispatch.ErrRequestInvalid, resp.ErrorCode)
		assert.Contains(t, resp.Data, "phone")
	})
}

func TestRegisterConcurrentSameIdentity(t *testing.T) {
	h := newHarness(t)

	const n = 8
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.pipeline.Dispatch(context.Background(),
				dispatch.NewRequest("register", registerBody("same", "same@example.com")))
			if err == nil {
				codes <- resp.SuccessCode
			}
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for code := range codes {
		if code == dispatch.OKUserCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestReauth(t *testing.T) {
	h := newHarness(t)
	tok := h.signup(t, "u1", "a@example.com")

	resp := h.do(t, "reauth", map[string]any{"token": tok})
	assert.Equal(t, dispatch.OKLoggedIn, resp.SuccessCode)
	assert.Equal(t, tok, resp.Data)

	resp = h.do(t, "reauth", map[string]any{"token": "not a token!"})
	assert.Equal(t, dispatch.ErrTokenFormat, resp.ErrorCode)

	other := h.signup(t, "u2", "b@example.com")
	require.NoError(t, h.store.RotateSecret(context.Background(), "u2", "rotated"))
	resp = h.do(t, "reauth", map[string]any{"token": other})
	assert.Equal(t, dispatch.ErrLogin, resp.ErrorCode)
}

func TestWhoamiAndEmailHash(t *testing.T) {
	h := newHarness(t)
	tok := h.signup(t, "u1", "a@example.com")

	resp := h.do(t, "whoami", map[string]any{"token": tok})
	require.Equal(t, dispatch.OKWhoami, resp.SuccessCode)
	view, ok := resp.Data.(whoamiView)
	require.True(t, ok)
	assert.Equal(t, "u1", view.ID)
	assert.Equal(t, "a@example.com", view.Email)
	// md5("a@example.com")
	assert.Equal(t, emailHash("a@example.com"), view.EmailHash)
	assert.Len(t, view.EmailHash, 32)

	resp = h.do(t, "emailhash", map[string]any{"uuid": "u1"})
	assert.Equal(t, dispatch.OKEmailHash, resp.SuccessCode)
	assert.Equal(t, view.EmailHash, resp.Data)

	resp = h.do(t, "emailhash", map[string]any{"uuid": "ghost"})
	assert.Equal(t, dispatch.ErrUserNotExist, resp.ErrorCode)

	resp = h.do(t, "whoami", map[string]any{"token": "garbage!"})
	assert.Equal(t, dispatch.ErrTokenFormat, resp.ErrorCode)
}

func TestEditProfile(t *testing.T) {
	h := newHarness(t)
	tok := h.signup(t, "u1", "a@example.com")
	h.signup(t, "u2", "b@example.com")

	resp := h.do(t, "editprofile", map[string]any{"token": tok, "type": "name", "data": "Renamed"})
	require.Equal(t, dispatch.OKAlterComplete, resp.SuccessCode)

	identity, err := h.store.FindByIdentifier(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", identity.Name)

	resp = h.do(t, "editprofile", map[string]any{"token": tok, "type": "secret", "data": "mine"})
	assert.Equal(t, dispatch.ErrAlterFailed, resp.ErrorCode)

	resp = h.do(t, "editprofile", map[string]any{"token": tok, "type": "email", "data": "b@example.com"})
	assert.Equal(t, dispatch.ErrUserExists, resp.ErrorCode)
}

// The token lifecycle: a password change rotates the secret, the old token
// stops verifying and the returned token works.
func TestChangePasswordRevokesTokens(t *testing.T) {
	h := newHarness(t)
	oldTok := h.signup(t, "u1", "a@example.com")

	resp := h.do(t, "whoami", map[string]any{"token": oldTok, "nonce": "n-1"})
	require.Equal(t, dispatch.OKWhoami, resp.SuccessCode)
	assert.Equal(t, "n-1", resp.Nonce)

	resp = h.do(t, "changepassword", map[string]any{"token": oldTok, "password": "wrong", "newpassword": "x"})
	assert.Equal(t, dispatch.ErrLogin, resp.ErrorCode)

	resp = h.do(t, "changepassword", map[string]any{"token": oldTok, "password": "hunter2", "newpassword": "s3cret"})
	require.Equal(t, dispatch.OKAlterComplete, resp.SuccessCode, resp.Message)
	newTok, ok := resp.Data.(string)
	require.True(t, ok)

	resp = h.do(t, "whoami", map[string]any{"token": oldTok, "nonce": "n-2"})
	assert.Equal(t, dispatch.ErrAuth, resp.ErrorCode)
	assert.Equal(t, "n-2", resp.Nonce)

	resp = h.do(t, "whoami", map[string]any{"token": newTok})
	assert.Equal(t, dispatch.OKWhoami, resp.SuccessCode)

	resp = h.do(t, "login", map[string]any{"email": "a@example.com", "password": "hunter2"})
	assert.Equal(t, dispatch.ErrLogin, resp.ErrorCode)
	resp = h.do(t, "login", map[string]any{"email": "a@example.com", "password": "s3cret"})
	assert.Equal(t, dispatch.OKLoggedIn, resp.SuccessCode)
}

func TestCreatePost(t *testing.T) {
	h := newHarness(t)
	tok := h.signup(t, "u1", "a@example.com")

	id := h.createPost(t, tok, "Need a **plumber** for kitchen sink repair")

	post, err := h.store.GetPost(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u1", post.OwnerID)
	assert.Equal(t, float64(500), post.Comp)
	assert.True(t, post.EndDate.Equal(h.now.Add(3*day)))
	assert.True(t, post.ExpiresAt.Equal(h.now.Add(10*day)))
	assert.Contains(t, post.Tags, "plumber")
	assert.NotContains(t, post.Tags, "need")

	t.Run("short duration expires after a week", func(t *testing.T) {
		body := postBody(tok, "quick job")
		body["duration"] = float64(0)
		resp := h.do(t, "post", body)
		require.Equal(t, dispatch.OKPostCreated, resp.SuccessCode)
		post, err := h.store.GetPost(context.Background(), resp.Data.(map[string]string)["postid"])
		require.NoError(t, err)
		assert.True(t, post.ExpiresAt.Equal(h.now.Add(expiryGrace)))
	})

	t.Run("duration out of range", func(t *testing.T) {
		for _, d := range []float64{-1, maxDurationDays + 1, 1e300} {
			body := postBody(tok, "x")
			body["duration"] = d
			resp := h.do(t, "post", body)
			assert.Equal(t, dispatch.ErrRequestInvalid, resp.ErrorCode, "duration %v", d)
		}
	})

	t.Run("wrong kind", func(t *testing.T) {
		body := postBody(tok, "x")
		body["comp"] = "lots"
		resp := h.do(t, "post", body)
		assert.Equal(t, dispatch.ErrRequestInvalid, resp.ErrorCode)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		resp := h.do(t, "post", postBody("AAAA", "x"))
		assert.NotZero(t, resp.ErrorCode)
		assert.Zero(t, resp.SuccessCode)
	})
}

func TestDeleteAndEditPost(t *testing.T) {
	h := newHarness(t)
	owner := h.signup(t, "u1", "a@example.com")
	other := h.signup(t, "u2", "b@example.com")
	id := h.createPost(t, owner, "paint the fence")

	resp := h.do(t, "edit", map[string]any{"token": owner, "postid": id, "type": "title", "data": "Paint"})
	assert.Equal(t, dispatch.OKAlterComplete, resp.SuccessCode)

	resp = h.do(t, "edit", map[string]any{"token": owner, "postid": id, "type": "comp", "data": "9"})
	assert.Equal(t, dispatch.ErrAlterFailed, resp.ErrorCode)

	resp = h.do(t, "edit", map[string]any{"token": other, "postid": id, "type": "title", "data": "Mine"})
	assert.Equal(t, dispatch.ErrPostNotExist, resp.ErrorCode)

	resp = h.do(t, "delete", map[string]any{"token": other, "postid": id})
	assert.Equal(t, dispatch.ErrDeleteFailed, resp.ErrorCode)

	resp = h.do(t, "delete", map[string]any{"token": owner, "postid": id})
	assert.Equal(t, dispatch.OKPostDeleted, resp.SuccessCode)

	resp = h.do(t, "delete", map[string]any{"token": owner, "postid": id})
	assert.Equal(t, dispatch.ErrDeleteFailed, resp.ErrorCode)
}

func TestAcceptAndWithdraw(t *testing.T) {
	h := newHarness(t)
	owner := h.signup(t, "u1", "a@example.com")
	worker := h.signup(t, "u2", "b@example.com")
	id := h.createPost(t, owner, "mow the lawn")

	resp := h.do(t, "withdraw", map[string]any{"token": worker, "postid": id})
	assert.Equal(t, dispatch.ErrPostNotExist, resp.ErrorCode, "withdrawing a job never accepted")

	resp = h.do(t, "accept", map[string]any{"token": worker, "postid": id})
	assert.Equal(t, dispatch.OKJobAccepted, resp.SuccessCode)

	resp = h.do(t, "accept", map[string]any{"token": worker, "postid": id})
	assert.Equal(t, dispatch.ErrJobAcceptFailed, resp.ErrorCode)

	resp = h.do(t, "whoami", map[string]any{"token": worker})
	require.Equal(t, dispatch.OKWhoami, resp.SuccessCode)
	assert.Equal(t, []string{id}, resp.Data.(whoamiView).Accepted)

	resp = h.do(t, "withdraw", map[string]any{"token": worker, "postid": id})
	assert.Equal(t, dispatch.OKWithdrawComplete, resp.SuccessCode)

	resp = h.do(t, "accept", map[string]any{"token": worker, "postid": "missing"})
	assert.Equal(t, dispatch.ErrPostNotExist, resp.ErrorCode)
	resp = h.do(t, "withdraw", map[string]any{"token": worker, "postid": "missing"})
	assert.Equal(t, dispatch.ErrPostNotExist, resp.ErrorCode)
}

func TestSearchAndQueryAll(t *testing.T) {
	h := newHarness(t)
	tok := h.signup(t, "u1", "a@example.com")
	plumbing := h.createPost(t, tok, "plumber wanted for *leaky* pipes")
	h.createPost(t, tok, "gardener wanted for hedges")

	resp := h.do(t, "queryall", nil)
	require.Equal(t, dispatch.OKQueryComplete, resp.SuccessCode)
	assert.Len(t, resp.Data.([]postView), 2)

	resp = h.do(t, "searchbykey", map[string]any{"keywords": []any{"PLUMBER", 7}})
	require.Equal(t, dispatch.OKQueryComplete, resp.SuccessCode)
	views := resp.Data.([]postView)
	require.Len(t, views, 1)
	assert.Equal(t, plumbing, views[0].ID)
	assert.Contains(t, views[0].DescriptionHTML, "<em>leaky</em>")

	resp = h.do(t, "searchbykey", map[string]any{"keywords": []any{"astronaut"}})
	require.Equal(t, dispatch.OKQueryComplete, resp.SuccessCode)
	assert.Empty(t, resp.Data.([]postView))

	resp = h.do(t, "searchbykey", map[string]any{"keywords": "plumber"})
	assert.Equal(t, dispatch.ErrRequestInvalid, resp.ErrorCode)
}

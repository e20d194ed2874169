// ABOUTME: Redis read-through cache for identity lookups in front of any Store
// ABOUTME: Mutations bump a generation counter so a racing fill cannot restore a revoked secret

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	identityKeyPrefix   = "gigs:identity:"
	generationKeyPrefix = "gigs:identity-gen:"
)

// errStaleLoad aborts a cache fill that raced with a mutation.
var errStaleLoad = errors.New("identity changed during load")

// CachedStore serves FindByIdentifier from Redis when possible. Redis errors
// are logged and fall through to the wrapped store.
type CachedStore struct {
	Store
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// Ensure CachedStore implements Store.
var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps next with a Redis identity cache.
func NewCachedStore(next Store, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		Store:  next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "identity-cache"),
	}
}

func identityKey(id string) string {
	return identityKeyPrefix + id
}

// generationKey counts mutations of one identity. It carries no expiry so a
// slow reader can never observe the counter reset.
func generationKey(id string) string {
	return generationKeyPrefix + id
}

// FindByIdentifier returns the cached identity or loads and caches it.
func (c *CachedStore) FindByIdentifier(ctx context.Context, id string) (*Identity, error) {
	raw, err := c.rdb.Get(ctx, identityKey(id)).Bytes()
	switch {
	case err == nil:
		var identity Identity
		if jsonErr := json.Unmarshal(raw, &identity); jsonErr == nil {
			return &identity, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "identity", id)
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("identity cache read failed", "identity", id, "error", err)
	}

	// Read the generation before the load. A mutation that commits after this
	// point bumps it, and the fill below is dropped.
	gen, err := c.rdb.Get(ctx, generationKey(id)).Result()
	cacheable := err == nil || errors.Is(err, redis.Nil)
	if !cacheable {
		c.logger.Debug("identity generation read failed, not caching", "identity", id, "error", err)
	}

	identity, err := c.Store.FindByIdentifier(ctx, id)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.fill(ctx, identity, gen)
	}
	return identity, nil
}

// fill caches identity only if its generation still equals gen. WATCH makes
// the check and the write atomic against a concurrent evict.
func (c *CachedStore) fill(ctx context.Context, identity *Identity, gen string) {
	data, err := json.Marshal(identity)
	if err != nil {
		return
	}

	genKey := generationKey(identity.ID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, identityKey(identity.ID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("skipping cache fill for changed identity", "identity", identity.ID)
	default:
		c.logger.Warn("identity cache write failed", "identity", identity.ID, "error", err)
	}
}

// UpdateFields updates the wrapped store and evicts the identity.
func (c *CachedStore) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	if err := c.Store.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

// RotateSecret rotates the secret and evicts the identity.
func (c *CachedStore) RotateSecret(ctx context.Context, id, secret string) error {
	if err := c.Store.RotateSecret(ctx, id, secret); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

// UpdateCredentials replaces the credentials and evicts the identity.
func (c *CachedStore) UpdateCredentials(ctx context.Context, id, passwordHash, secret string) error {
	if err := c.Store.UpdateCredentials(ctx, id, passwordHash, secret); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

// AcceptPost records the acceptance and evicts the identity's cached job list.
func (c *CachedStore) AcceptPost(ctx context.Context, identityID, postID string) error {
	if err := c.Store.AcceptPost(ctx, identityID, postID); err != nil {
		return err
	}
	c.evict(ctx, identityID)
	return nil
}

// WithdrawPost removes the acceptance and evicts the identity's cached job list.
func (c *CachedStore) WithdrawPost(ctx context.Context, identityID, postID string) error {
	if err := c.Store.WithdrawPost(ctx, identityID, postID); err != nil {
		return err
	}
	c.evict(ctx, identityID)
	return nil
}

// Close closes the wrapped store. The Redis client is owned by the caller.
func (c *CachedStore) Close() error {
	return c.Store.Close()
}

// evict bumps the identity's generation and drops the cached record. The
// mutation has already committed, so a failure here is logged, not returned.
func (c *CachedStore) evict(ctx context.Context, id string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Del(ctx, identityKey(id))
		return nil
	})
	if err != nil {
		c.logger.Error("evicting cached identity failed, stale entry may be served until ttl",
			"identity", id, "ttl", c.ttl, "error", err)
	}
}

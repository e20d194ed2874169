// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Two interfaces split the data by concern:
//
//   - CredentialStore: identities, their password hashes and signing secrets
//   - PostStore: job posts, keywords, and job acceptances
//
// SQLiteStore implements both. CachedStore wraps any Store with a Redis
// read-through cache for identity lookups, evicting on every mutation.
//
// # Uniqueness
//
// Identity ids and emails carry UNIQUE constraints, so concurrent
// registrations for the same identity cannot both succeed: the loser gets
// ErrIdentityExists from InsertIdentity.
//
// # Secrets
//
// Identity.Secret keys every bearer token for that identity. RotateSecret and
// UpdateCredentials replace it, which revokes all outstanding tokens.
// Identity.Public strips the secret and password hash.
package store

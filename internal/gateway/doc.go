// Package gateway assembles the gigs-gateway server.
//
// New wires the SQLite store (optionally behind the Redis identity cache),
// the token protocol, the operation registry and the dispatch pipeline, and
// mounts them on one HTTP listener:
//
//	GET  /ws                              websocket transport
//	GET  /health                          liveness
//	POST /admin/identities/{id}/revoke    operator API (needs auth.admin_secret)
//
// Run blocks until its context is cancelled and then shuts down gracefully,
// cancelling open websocket sessions and closing the store.
package gateway

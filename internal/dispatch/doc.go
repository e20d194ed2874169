// Package dispatch runs every named request through one uniform pipeline.
//
// # Pipeline
//
// For each request the Pipeline:
//
//  1. Looks up the operation in the Registry. Unknown names return
//     ErrUnknownOperation and no envelope; the transport treats that as a
//     protocol violation.
//  2. Validates the body against the operation's Shape. Failure always yields
//     errorcode 406 with the first validation message as data.
//  3. For operations with RequiresIdentity, verifies body.token. Rejections
//     map to 403, 401 or 404 unless the operation supplies its own mapping,
//     and the handler never runs.
//  4. Runs the handler and wraps its Outcome in a Response.
//
// Every registered request yields exactly one Response carrying the
// request's nonce unchanged, so clients can multiplex requests over one
// connection.
//
// # Registry
//
// The Registry is built once with NewRegistry and never modified, so one
// instance can be shared by every connection.
package dispatch

// Package token issues and verifies the gateway's stateless bearer tokens.
//
// # Wire Format
//
// A token is the ordered triple
//
//	[identifier, issuedAtSeconds, signatureHex]
//
// framed with MessagePack and encoded as unpadded URL-safe base64. The
// signature is the lowercase hex HMAC-SHA256 of the MessagePack framing of
// [identifier, issuedAtSeconds], keyed by the identity's server-side secret.
//
// # Verification
//
// Nothing about issued tokens is stored. Verify recomputes the signature from
// the identity's current secret on every call, so rotating that secret is the
// only way to revoke tokens. The issue timestamp is informational unless a
// maximum token age is configured with WithMaxAge.
//
// Every failure is a *RejectedError matching ErrRejected; its Reason carries
// the precise cause for server-side logging.
package token

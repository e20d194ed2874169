// Package codec packs ordered field lists into bytes and bytes into URL-safe text.
//
// # Binary framing
//
// Fields are framed with MessagePack. Serialize always encodes a top-level
// array; Deserialize refuses anything else:
//
//	b, _ := codec.Serialize([]any{"user-1", int64(1700000000)})
//	fields, err := codec.Deserialize(b)
//
// Integers come back as int64 whenever they fit, so a round trip of int64
// values is exact.
//
// # Text encoding
//
// EncodeText uses the URL-safe base64 alphabet (- and _ instead of + and /)
// with no padding. DecodeText rejects any character outside that alphabet.
package codec

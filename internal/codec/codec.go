// ABOUTME: Reversible MessagePack framing of ordered field lists
// ABOUTME: Plus URL-safe unpadded base64 text encoding used for bearer tokens

package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec errors
var (
	ErrMalformedToken  = errors.New("malformed token")
	ErrUnexpectedShape = errors.New("unexpected shape")
)

// urlSafe matches a non-empty string drawn only from the URL-safe base64 alphabet.
var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Serialize packs the ordered fields into a MessagePack array.
func Serialize(fields []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)

	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize unpacks a MessagePack array produced by Serialize.
// It fails with ErrMalformedToken when the bytes are not exactly one valid
// MessagePack value, and with ErrUnexpectedShape when that value is not an array.
func Deserialize(b []byte) ([]any, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedToken)
	}

	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedToken, r.Len())
	}

	fields, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T, want array", ErrUnexpectedShape, v)
	}
	return normalize(fields), nil
}

// normalize folds unsigned integers that fit into int64, recursing into nested arrays.
func normalize(fields []any) []any {
	for i, f := range fields {
		switch x := f.(type) {
		case uint64:
			if x <= math.MaxInt64 {
				fields[i] = int64(x)
			}
		case []any:
			fields[i] = normalize(x)
		}
	}
	return fields
}

// EncodeText encodes b with the URL-safe base64 alphabet and no padding.
func EncodeText(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// ValidText reports whether s consists only of URL-safe alphabet characters.
func ValidText(s string) bool {
	return urlSafe.MatchString(s)
}

// strictText rejects encodings whose unused trailing bits are set, so each
// byte string has exactly one accepted text form.
var strictText = base64.RawURLEncoding.Strict()

// DecodeText is the inverse of EncodeText.
func DecodeText(s string) ([]byte, error) {
	if !ValidText(s) {
		return nil, fmt.Errorf("%w: characters outside url-safe alphabet", ErrMalformedToken)
	}
	b, err := strictText.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return b, nil
}

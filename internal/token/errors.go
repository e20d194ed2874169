// ABOUTME: Rejection reasons and the error type returned by token verification
// ABOUTME: Reasons stay server-side; clients only see the coarse response code

package token

import "errors"

// ErrRejected matches every *RejectedError via errors.Is.
var ErrRejected = errors.New("token rejected")

// Reason is the precise cause of a token rejection.
type Reason int

// Rejection reasons
const (
	BadEncoding Reason = iota + 1
	BadFraming
	BadShape
	UnknownIdentity
	BadSignature
	StoreUnavailable
	Expired
)

func (r Reason) String() string {
	switch r {
	case BadEncoding:
		return "bad_encoding"
	case BadFraming:
		return "bad_framing"
	case BadShape:
		return "bad_shape"
	case UnknownIdentity:
		return "unknown_identity"
	case BadSignature:
		return "bad_signature"
	case StoreUnavailable:
		return "store_unavailable"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsFormat reports whether the reason is one of the token format failures.
// Clients see one code for all of them.
func (r Reason) IsFormat() bool {
	return r == BadEncoding || r == BadFraming || r == BadShape || r == Expired
}

// RejectedError is returned by Verify and Reauthenticate.
type RejectedError struct {
	Reason Reason
	cause  error
}

func (e *RejectedError) Error() string {
	if e.cause != nil {
		return "token rejected: " + e.Reason.String() + ": " + e.cause.Error()
	}
	return "token rejected: " + e.Reason.String()
}

// Unwrap returns the underlying cause, if any.
func (e *RejectedError) Unwrap() error { return e.cause }

// Is makes every RejectedError match ErrRejected.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// ReasonOf extracts the rejection reason from err, or 0 if err is not a rejection.
func ReasonOf(err error) Reason {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return 0
}

// ABOUTME: Response envelope and the status, error and success code vocabulary
// ABOUTME: Exactly one of ErrorCode/SuccessCode is non-zero in every envelope

package dispatch

// Envelope status codes
const (
	StatusOK    = 200
	StatusError = 201
)

// Error codes
const (
	ErrUserExists      = 400
	ErrUserNotExist    = 401
	ErrLogin           = 402
	ErrTokenFormat     = 403
	ErrAuth            = 404
	ErrDeleteFailed    = 405
	ErrRequestInvalid  = 406
	ErrAlterFailed     = 407
	ErrJobAcceptFailed = 408
	ErrPostNotExist    = 409
	ErrWithdrawFailed  = 410
	ErrInternal        = 500
)

// Success codes
const (
	OKUserCreated      = 300
	OKLoggedIn         = 301
	OKPostCreated      = 302
	OKQueryComplete    = 303
	OKPostDeleted      = 304
	OKWhoami           = 305
	OKEmailHash        = 306
	OKAlterComplete    = 307
	OKJobAccepted      = 308
	OKWithdrawComplete = 309
)

// Response is the envelope emitted for every dispatched request.
type Response struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	ErrorCode   int    `json:"errorcode"`
	SuccessCode int    `json:"successcode"`
	Data        any    `json:"data"`
	Nonce       any    `json:"nonce,omitempty"`
}

// OK reports whether the envelope describes a success.
func (r Response) OK() bool {
	return r.ErrorCode == 0
}

// Outcome is what an operation handler reports. Build one with Success or Failure.
type Outcome struct {
	ErrorCode   int
	SuccessCode int
	Message     string
	Data        any
}

// Success builds a successful outcome.
func Success(code int, message string, data any) Outcome {
	return Outcome{SuccessCode: code, Message: message, Data: data}
}

// Failure builds a failed outcome with no payload.
func Failure(code int, message string) Outcome {
	return Outcome{ErrorCode: code, Message: message}
}

// envelope turns an outcome into a response carrying nonce. Outcomes with
// both or neither code set are handler bugs and become internal errors.
func envelope(o Outcome, nonce any) Response {
	if (o.ErrorCode == 0) == (o.SuccessCode == 0) {
		o = Failure(ErrInternal, "internal error")
	}

	data := o.Data
	if data == nil {
		data = ""
	}

	resp := Response{
		Message:     o.Message,
		ErrorCode:   o.ErrorCode,
		SuccessCode: o.SuccessCode,
		Data:        data,
		Nonce:       nonce,
	}
	if o.ErrorCode == 0 {
		resp.Code = StatusOK
	} else {
		resp.Code = StatusError
		resp.SuccessCode = 0
	}
	return resp
}

package errutil

import (
	"fmt"
)

// Detail points at the request field that failed validation.
type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BaseError is the error every service returns to the transports. Code decides the
// HTTP and gRPC status; Err is kept for errors.Is and logging only.
type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

// Body is the payload of the HTTP error envelope.
type Body struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details"`
}

// Envelope is written as {"error": {...}}.
type Envelope struct {
	Error Body `json:"error"`
}

func (e BaseError) Status() CoreStatus { return e.Code }

func (e BaseError) Unwrap() error { return e.Err }

func (e BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) JSON() Envelope {
	details := e.Details
	if details == nil {
		details = []Detail{}
	}
	return Envelope{Error: Body{Code: e.Code, Message: e.messageWithErr(), Details: details}}
}

func (e BaseError) messageWithErr() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func wrap(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return wrap(StatusNotFound, msg, err, options)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return wrap(StatusUnprocessableEntity, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return wrap(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return wrap(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return wrap(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return wrap(StatusInternal, msg, err, options)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return wrap(StatusUnauthorized, msg, err, options)
}

func Forbidden(msg string, err error, options ...Option) error {
	return wrap(StatusForbidden, msg, err, options)
}

// InsufficientStock and InsufficientPoints report business rule violations. They
// carry no cause: the message already names the shortfall.
func InsufficientStock(msg string, options ...Option) error {
	return New(StatusInsufficientStock, msg, options...)
}

func InsufficientPoints(msg string, options ...Option) error {
	return New(StatusInsufficientPoints, msg, options...)
}

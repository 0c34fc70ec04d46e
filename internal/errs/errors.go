package errs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kind classifies a service error. Every kind maps to exactly one HTTP
// status code and one stable machine-readable id.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindAccessDenied
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindAgeRestriction
	KindAlreadyFinished
	KindInternal
)

// kindIDs are the wire-stable ids clients match on. They never change.
var kindIDs = map[Kind]string{
	KindUnknown:           "Internal",
	KindInvalidArgument:   "InvalidArgument",
	KindAccessDenied:      "AccessDenied",
	KindNotFound:          "NotFound",
	KindConflict:          "Conflict",
	KindInsufficientFunds: "InsufficientFunds",
	KindAgeRestriction:    "AgeRestriction",
	KindAlreadyFinished:   "AlreadyFinished",
	KindInternal:          "Internal",
}

var kindStatus = map[Kind]int{
	KindUnknown:           http.StatusInternalServerError,
	KindInvalidArgument:   http.StatusBadRequest,
	KindAccessDenied:      http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindInsufficientFunds: http.StatusUnprocessableEntity,
	KindAgeRestriction:    http.StatusUnprocessableEntity,
	KindAlreadyFinished:   http.StatusUnprocessableEntity,
	KindInternal:          http.StatusInternalServerError,
}

// Error is the service error carried across every layer above storage.
type Error struct {
	Kind    Kind                   `json:"-"`
	ID      string                 `json:"id"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.ID, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code this error renders with.
func (e *Error) HTTPStatus() int {
	if code, ok := kindStatus[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WithDetail attaches a structured context field to the error payload.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind with the kind's default id.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, ID: kindIDs[kind], Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// InvalidArgument reports semantically wrong client input.
func InvalidArgument(message string) *Error {
	return New(KindInvalidArgument, message)
}

// InvalidArgumentf reports semantically wrong client input with a formatted message.
func InvalidArgumentf(format string, args ...interface{}) *Error {
	return Newf(KindInvalidArgument, format, args...)
}

// AccessDenied reports missing authentication or insufficient privileges.
func AccessDenied(message string) *Error {
	return New(KindAccessDenied, message)
}

// NotFound reports that the entity of the given type and id does not
// exist within the caller's scope.
func NotFound(entity string, id interface{}) *Error {
	return Newf(KindNotFound, "%s with id %v does not exist", entity, id).
		WithDetail("element_type", entity).
		WithDetail("element_id", id)
}

// Conflict reports a lock or state violation.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// InsufficientFunds reports that a customer balance cannot cover an
// order sum. Both amounts travel as structured details.
func InsufficientFunds(needed, available decimal.Decimal) *Error {
	return Newf(KindInsufficientFunds, "insufficient funds: needed %s, available %s",
		needed.StringFixed(2), available.StringFixed(2)).
		WithDetail("needed_fund", needed).
		WithDetail("available_fund", available)
}

// AgeRestriction reports products the customer's tag may not buy.
func AgeRestriction(productIDs []int64) *Error {
	return New(KindAgeRestriction, "product age restriction not met").
		WithDetail("product_ids", productIDs)
}

// AlreadyFinished reports a confirm or cancel against an order that
// already left the pending state.
func AlreadyFinished(orderID int64) *Error {
	return Newf(KindAlreadyFinished, "order %d has already been finished", orderID).
		WithDetail("order_id", orderID)
}

// Internal wraps an unexpected failure. The cause is logged, never
// rendered to clients.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, ID: kindIDs[KindInternal], Message: message, Cause: cause}
}

// ProductNotEditable reports a mutation against a locked product. The
// id is distinct so terminals can surface the specific rule.
func ProductNotEditable(productID int64) *Error {
	e := Newf(KindInvalidArgument, "product %d is locked and cannot be modified", productID)
	e.ID = "ProductNotEditable"
	return e.WithDetail("product_id", productID)
}

// Unauthenticated reports a missing or invalid bearer token. It is an
// access-denied kind with a distinct id so clients can redirect to login.
func Unauthenticated() *Error {
	e := New(KindAccessDenied, "authentication required")
	e.ID = "Unauthenticated"
	return e
}

// KindOf returns the kind of err, or KindUnknown when err does not wrap
// an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IDOf returns the stable id of err, defaulting to "Internal".
func IDOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.ID
	}
	return kindIDs[KindInternal]
}

// HTTPStatusOf maps err to its response status, defaulting to 500.
func HTTPStatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsUnauthenticated checks whether err is an unauthenticated error
func IsUnauthenticated(err error) bool { return IDOf(err) == "Unauthenticated" }

// IsInvalidArgument checks whether err is an invalid-argument error
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsAccessDenied checks whether err is an access-denied error
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }

// IsNotFound checks whether err is a not-found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict checks whether err is a conflict error
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInsufficientFunds checks whether err is an insufficient-funds error
func IsInsufficientFunds(err error) bool { return KindOf(err) == KindInsufficientFunds }

// IsAgeRestriction checks whether err is an age-restriction error
func IsAgeRestriction(err error) bool { return KindOf(err) == KindAgeRestriction }

// IsAlreadyFinished checks whether err is an already-finished error
func IsAlreadyFinished(err error) bool { return KindOf(err) == KindAlreadyFinished }

// IsInternal checks whether err is an internal error
func IsInternal(err error) bool {
	k := KindOf(err)
	return k == KindInternal || k == KindUnknown
}

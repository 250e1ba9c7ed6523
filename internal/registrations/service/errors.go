package registrations

import (
	"errors"
	"fmt"

	"ms-perfiles/internal/models"
)

// Error kinds reported to callers so they can branch without parsing
// messages.
const (
	KindValidation         = "validation"
	KindMissingSecret      = "missing_secret"
	KindCredentialNotFound = "credential_not_found"
	KindUnauthorized       = "unauthorized"
	KindLimitReached       = "limit_reached"
	KindStoreUnavailable   = "store_unavailable"
	KindEventNotFound      = "event_not_found"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// MissingSecretError carries the resolved key so the caller can show it
// while asking for the secret.
type MissingSecretError struct {
	NormalizedKey string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("secret required for employee %s", e.NormalizedKey)
}

type CredentialNotFoundError struct {
	NormalizedKey string
}

func (e *CredentialNotFoundError) Error() string {
	return fmt.Sprintf("no credential for employee %s", e.NormalizedKey)
}

type UnauthorizedError struct {
	NormalizedKey string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("secret rejected for employee %s", e.NormalizedKey)
}

type LimitReachedError struct {
	Key          models.CombinationKey
	CurrentCount int
	Ceiling      int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("combination %s reached its limit (%d/%d)", e.Key, e.CurrentCount, e.Ceiling)
}

type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

type EventNotFoundError struct {
	ID int64
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("registration event %d not found", e.ID)
}

func storeUnavailable(op string, err error) error {
	return &StoreUnavailableError{Op: op, Err: err}
}

// ErrorKind maps an error returned by this package to its kind. Unknown
// errors are reported as store_unavailable.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		missing    *MissingSecretError
		notFound   *CredentialNotFoundError
		unauth     *UnauthorizedError
		limit      *LimitReachedError
		noEvent    *EventNotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &missing):
		return KindMissingSecret
	case errors.As(err, &notFound):
		return KindCredentialNotFound
	case errors.As(err, &unauth):
		return KindUnauthorized
	case errors.As(err, &limit):
		return KindLimitReached
	case errors.As(err, &noEvent):
		return KindEventNotFound
	default:
		return KindStoreUnavailable
	}
}

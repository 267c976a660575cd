package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrDuplicateIdentity     = fmt.Errorf("username already exists")
	ErrWeakCredential        = fmt.Errorf("password does not meet the policy")
	ErrInvalidCredential     = fmt.Errorf("invalid credentials")
	ErrNotFound              = fmt.Errorf("not found")
	ErrUserOffline           = fmt.Errorf("user is offline")
	ErrNotMember             = fmt.Errorf("sender is not a member of the session")
	ErrAuthenticationFailure = fmt.Errorf("authentication failure during unwrap")
	ErrDerivationTimeout     = fmt.Errorf("key derivation timed out")
	ErrWorkerPanic           = fmt.Errorf("worker panic")
)

// PartialUnavailabilityError aborts a chat initiation when some invitees
// have no live connection. The session was never created and no key
// material was generated when this error is returned.
type PartialUnavailabilityError struct {
	OfflineUsers []string
}

func (e *PartialUnavailabilityError) Error() string {
	return fmt.Sprintf("some users are offline: %s", strings.Join(e.OfflineUsers, ","))
}

// AsPartialUnavailability extracts the offline user list from an error chain.
func AsPartialUnavailability(err error) (*PartialUnavailabilityError, bool) {
	var target *PartialUnavailabilityError
	ok := stderrors.As(err, &target)
	return target, ok
}

// MapToHTTPStatus converts a domain error into the status code the HTTP
// boundary answers with. Internal details never leave the server; handlers
// pair the code with a short reason string.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict
	case stderrors.Is(err, ErrWeakCredential):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrInvalidCredential),
		stderrors.Is(err, ErrAuthenticationFailure):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrUserOffline), stderrors.Is(err, ErrNotMember):
		return http.StatusConflict
	case stderrors.Is(err, ErrDerivationTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

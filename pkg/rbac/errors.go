package rbac

import (
	"errors"
	"fmt"
)

// ForbiddenError indicates the actor lacks the permission required for an
// operation. It is never returned by HasPermission, which collapses every
// failure to a deny; only mutating operations surface it.
type ForbiddenError struct {
	UserID     int64
	Permission Permission
	Scope      Scope
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %d lacks %s at %s", e.UserID, e.Permission, e.Scope)
}

// IsForbidden checks if an error is an authorization failure.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// StorageUnavailableError wraps a transient storage-port failure. Callers on
// the permission path must treat it as deny; callers on mutation paths may
// retry.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// IsStorageUnavailable checks if an error is a transient storage failure.
func IsStorageUnavailable(err error) bool {
	var se *StorageUnavailableError
	return errors.As(err, &se)
}

// InvalidArgumentError indicates a malformed scope, role or permission
// identifier supplied by the caller.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInvalidArgument checks if an error is an invalid-argument failure.
func IsInvalidArgument(err error) bool {
	var ie *InvalidArgumentError
	return errors.As(err, &ie)
}

package binding

import (
	"errors"
	"fmt"

	"github.com/aicarpool/carpool/pkg/accounts"
)

// ErrBindingNotFound indicates the group has no resource binding configured.
var ErrBindingNotFound = errors.New("resource binding not found")

// NoAvailableAccountError indicates the group was authorized but every
// account in the applicable pool was excluded (wrong status, quota
// exhausted, or none bound). Distinct from an authorization failure so
// callers can surface "no capacity" differently from "not allowed".
type NoAvailableAccountError struct {
	GroupID  int64
	Platform accounts.Platform
	Reason   string
}

func (e *NoAvailableAccountError) Error() string {
	return fmt.Sprintf("no available %s account for group %d: %s", e.Platform, e.GroupID, e.Reason)
}

// IsNoAvailableAccount checks if an error is a capacity failure.
func IsNoAvailableAccount(err error) bool {
	var ne *NoAvailableAccountError
	return errors.As(err, &ne)
}

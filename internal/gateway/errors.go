package gateway

import "github.com/pkg/errors"

var (
	// ErrAuthentication marks a handshake whose signature does not verify.
	ErrAuthentication = errors.New("authentication failed")
	// ErrCoordinatorStopped is returned by coordinator calls after Run has exited.
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)

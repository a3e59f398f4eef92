package canister

import (
	"context"

	"github.com/pkg/errors"

	"icgateway/internal/protocol"
)

// ErrTransport marks a canister call that failed, was rejected or timed out.
var ErrTransport = errors.New("canister transport error")

// Client is the call surface the gateway consumes from a canister.
type Client interface {
	// GetClientKey returns the public key the canister has on file for clientID.
	GetClientKey(ctx context.Context, canisterID string, clientID uint64) ([]byte, error)
	Open(ctx context.Context, canisterID string, clientCanisterID, sig []byte) (string, error)
	Message(ctx context.Context, canisterID string, payload []byte) (string, error)
	Close(ctx context.Context, canisterID string, clientID uint64) error
	GetMessages(ctx context.Context, canisterID string, nonce uint64) (*protocol.CertMessages, error)
}

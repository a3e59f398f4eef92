package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrStore marks a failed persistence operation.
var ErrStore = errors.New("session store error")

// Record is the bookkeeping kept for an authenticated client so a restarted
// gateway can tell which canister it belonged to.
type Record struct {
	ClientID   uint64 `json:"client_id"`
	CanisterID string `json:"canister_id"`
	Timestamp  uint64 `json:"timestamp"` // unix seconds
}

func NewRecord(clientID uint64, canisterID string) Record {
	return Record{
		ClientID:   clientID,
		CanisterID: canisterID,
		Timestamp:  uint64(time.Now().Unix()),
	}
}

type StoreInterface interface {
	Save(ctx context.Context, clientID uint64, rec Record, ttl time.Duration) error
	// Get returns nil, nil when no live record exists.
	Get(ctx context.Context, clientID uint64) (*Record, error)
	Delete(ctx context.Context, clientID uint64) error
	Close() error
}

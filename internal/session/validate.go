package session

import (
	"context"

	"icgateway/internal/logger"
)

// Validate reports whether a live record exists for clientID and belongs to
// canisterID. Store failures count as invalid.
func Validate(ctx context.Context, store StoreInterface, clientID uint64, canisterID string) bool {
	rec, err := store.Get(ctx, clientID)
	if err != nil {
		log := logger.Component("session")
		log.Warn().Err(err).Uint64("client_id", clientID).Msg("session lookup failed")
		return false
	}
	return rec != nil && rec.CanisterID == canisterID
}

package services

import (
	"bytes"

	"github.com/dstrelkov/mobsync/internal/models"
)

// DetectConflict compares a claimed queue item with the current server
// snapshot and returns a conflict when the client's base version is
// stale. A nil result means the item can be applied directly.
//
// Deletes are special-cased: deleting an entity the server already
// removed is a no-op rather than a conflict, and deleting a server-side
// modified entity is a plain version mismatch since the client carries
// no payload to merge.
func DetectConflict(item *models.QueueItem, snap *VersionedSnapshot, sessionID string) *models.Conflict {
	if snap == nil {
		if item.Operation == models.OpUpdate {
			return models.NewConflict(item, models.ConflictUpdateDelete, nil, 0, sessionID)
		}
		return nil
	}
	if snap.Version == item.BaseVersion {
		return nil
	}
	if len(item.Payload) > 0 && len(snap.Data) > 0 && !bytes.Equal(item.Payload, snap.Data) {
		return models.NewConflict(item, models.ConflictUpdateUpdate, snap.Data, snap.Version, sessionID)
	}
	return models.NewConflict(item, models.ConflictVersionMismatch, snap.Data, snap.Version, sessionID)
}

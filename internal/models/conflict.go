package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected collision.
type ConflictType string

const (
	ConflictUpdateUpdate    ConflictType = "UPDATE_UPDATE"
	ConflictUpdateDelete    ConflictType = "UPDATE_DELETE"
	ConflictVersionMismatch ConflictType = "VERSION_MISMATCH"
)

// ResolutionStrategy records how a conflict was (or should be) arbitrated.
type ResolutionStrategy string

const (
	StrategyServerWins ResolutionStrategy = "SERVER_WINS"
	StrategyClientWins ResolutionStrategy = "CLIENT_WINS"
	StrategyManual     ResolutionStrategy = "MANUAL"
	StrategyMerge      ResolutionStrategy = "MERGE"
)

// ConflictStatus is the lifecycle state of a conflict record.
type ConflictStatus string

const (
	ConflictDetected ConflictStatus = "DETECTED"
	ConflictResolved ConflictStatus = "RESOLVED"
	ConflictIgnored  ConflictStatus = "IGNORED"
)

// Conflict is a detected collision between a queued client change and
// server state for the same entity. While DETECTED the resolution fields
// (ResolvedData, ResolvedBy, ResolvedAt) are all nil; once RESOLVED they
// are all set. Reopen clears them again.
type Conflict struct {
	ID       string
	UserID   string
	DeviceID string

	// SessionID links back to the session that detected the conflict, so
	// resolution can bump that session's resolved counter. May be empty
	// for conflicts raised outside a tracked run.
	SessionID string
	// ItemID links back to the queue item parked in CONFLICT, so
	// resolution can release it and ignore can drop it.
	ItemID string

	EntityType string
	EntityID   string

	ServerData []byte
	ClientData []byte
	// ServerVersion is the snapshot version observed at detection time.
	ServerVersion int64
	// ClientBaseVersion is the version the client change was derived from.
	ClientBaseVersion int64

	Type     ConflictType
	Strategy ResolutionStrategy
	Status   ConflictStatus

	ResolvedData []byte
	ResolvedBy   string

	DetectedAt time.Time
	ResolvedAt *time.Time
}

// NewConflict builds a fully-initialized DETECTED conflict.
func NewConflict(item *QueueItem, conflictType ConflictType, serverData []byte, serverVersion int64, sessionID string) *Conflict {
	return &Conflict{
		ID:                uuid.New().String(),
		UserID:            item.UserID,
		DeviceID:          item.DeviceID,
		SessionID:         sessionID,
		ItemID:            item.ID,
		EntityType:        item.EntityType,
		EntityID:          item.EntityID,
		ServerData:        serverData,
		ClientData:        item.Payload,
		ServerVersion:     serverVersion,
		ClientBaseVersion: item.BaseVersion,
		Type:              conflictType,
		Status:            ConflictDetected,
		DetectedAt:        time.Now().UTC(),
	}
}

// IsOpen reports whether the conflict still awaits a resolution action.
func (c *Conflict) IsOpen() bool {
	return c.Status == ConflictDetected
}

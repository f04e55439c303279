// Package models defines the persisted records of the sync core: queue
// items, sync sessions, conflicts and cache entries, together with their
// status enumerations and pure derived helpers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation a queue item carries.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueInProgress QueueStatus = "IN_PROGRESS"
	QueueSynced     QueueStatus = "SYNCED"
	QueueFailed     QueueStatus = "FAILED"
	QueueConflict   QueueStatus = "CONFLICT"
)

const (
	// DefaultPriority is used when the client does not specify one.
	// Priorities run 1 (highest) to 10 (lowest).
	DefaultPriority = 5
	// DefaultMaxRetries bounds automatic retries of a failed item.
	DefaultMaxRetries = 3

	MinPriority = 1
	MaxPriority = 10
)

// QueueItem is one pending client-originated mutation awaiting server
// application. The payload is opaque to the core.
type QueueItem struct {
	ID       string
	UserID   string
	DeviceID string

	EntityType string
	EntityID   string
	Operation  Operation

	// Payload is the serialized snapshot of the change; empty for DELETE.
	Payload []byte
	// BaseVersion is the server version the client change was derived
	// from; compared against the snapshot provider during conflict
	// detection.
	BaseVersion int64

	Priority   int
	RetryCount int
	MaxRetries int

	Status QueueStatus
	// LastError holds the most recent failure reason; cleared on retry.
	LastError string
	// Permanent marks an apply failure that should not be retried
	// automatically. Manual retry is still allowed.
	Permanent bool

	CreatedAt time.Time
	ClaimedAt *time.Time
	SyncedAt  *time.Time
}

// NewQueueItem builds a fully-initialized PENDING item. A priority outside
// [MinPriority, MaxPriority] (including zero) falls back to DefaultPriority.
func NewQueueItem(userID, deviceID, entityType, entityID string, op Operation, payload []byte, baseVersion int64, priority int) *QueueItem {
	if priority < MinPriority || priority > MaxPriority {
		priority = DefaultPriority
	}
	return &QueueItem{
		ID:          uuid.New().String(),
		UserID:      userID,
		DeviceID:    deviceID,
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   op,
		Payload:     payload,
		BaseVersion: baseVersion,
		Priority:    priority,
		MaxRetries:  DefaultMaxRetries,
		Status:      QueuePending,
		CreatedAt:   time.Now().UTC(),
	}
}

// CanRetry reports whether Retry is currently legal for the item.
func (i *QueueItem) CanRetry() bool {
	return i.Status == QueueFailed && i.RetryCount < i.MaxRetries
}

// Exhausted reports whether the item has used up its retry budget
// ("dead-letter": permanent until an operator intervenes).
func (i *QueueItem) Exhausted() bool {
	return i.RetryCount >= i.MaxRetries
}

// IsTerminal reports whether the item reached a state the sync run will not
// pick up again on its own.
func (i *QueueItem) IsTerminal() bool {
	switch i.Status {
	case QueueSynced, QueueConflict:
		return true
	case QueueFailed:
		return i.Exhausted()
	default:
		return false
	}
}

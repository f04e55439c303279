package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceType identifies the client platform of a sync session.
type DeviceType string

const (
	DeviceAndroid DeviceType = "ANDROID"
	DeviceIOS     DeviceType = "IOS"
)

// SyncType is the kind of synchronization run.
type SyncType string

const (
	SyncFull        SyncType = "FULL"
	SyncIncremental SyncType = "INCREMENTAL"
	SyncPush        SyncType = "PUSH"
	SyncPull        SyncType = "PULL"
)

// Direction is the data flow of a session.
type Direction string

const (
	DirectionUpload        Direction = "UPLOAD"
	DirectionDownload      Direction = "DOWNLOAD"
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// SessionStatus is the lifecycle state of a sync session. Transitions are
// monotonic: a terminal session never re-enters IN_PROGRESS.
type SessionStatus string

const (
	SessionInitiated  SessionStatus = "INITIATED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// SyncSession is one bounded synchronization run for a (user, device) pair.
// It is a reporting view over the run, not a container of queue items.
type SyncSession struct {
	ID       string
	UserID   string
	DeviceID string

	DeviceType DeviceType
	AppVersion string
	SyncType   SyncType
	Direction  Direction

	Status SessionStatus

	RecordsUploaded   int
	RecordsDownloaded int
	ConflictsDetected int
	ConflictsResolved int

	ErrorMessage string

	StartedAt   time.Time
	CompletedAt *time.Time
	// DurationSeconds is derived once the session closes.
	DurationSeconds int64
}

// NewSyncSession builds a fully-initialized INITIATED session.
func NewSyncSession(userID, deviceID string, deviceType DeviceType, appVersion string, syncType SyncType, direction Direction) *SyncSession {
	return &SyncSession{
		ID:         uuid.New().String(),
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		AppVersion: appVersion,
		SyncType:   syncType,
		Direction:  direction,
		Status:     SessionInitiated,
		StartedAt:  time.Now().UTC(),
	}
}

// IsTerminal reports whether the session has closed.
func (s *SyncSession) IsTerminal() bool {
	switch s.Status {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Duration returns the elapsed run time, or zero while the session is open.
func (s *SyncSession) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// HasUnresolvedConflicts reports whether conflicts detected during the run
// are still awaiting resolution. It is a derived read, never a gate on
// completing the session.
func (s *SyncSession) HasUnresolvedConflicts() bool {
	return s.ConflictsDetected > s.ConflictsResolved
}

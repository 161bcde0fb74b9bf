package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
)

type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "WAITING"
	QueueStatusPlaying   QueueStatus = "PLAYING"
	QueueStatusCompleted QueueStatus = "COMPLETED"
	QueueStatusSkipped   QueueStatus = "SKIPPED"
)

func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusSkipped
}

// PositionStep is the gap left between consecutive queue positions so an
// entry can be inserted between two others without renumbering.
const PositionStep = 10000

type QueueEntry struct {
	ID              uuid.UUID   `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID          uuid.UUID   `json:"room_id" gorm:"type:char(36);not null;index:idx_queue_room_status"`
	UserID          uuid.UUID   `json:"user_id" gorm:"type:char(36);not null;index"`
	VideoID         string      `json:"video_id" gorm:"size:32;not null"`
	VideoTitle      string      `json:"video_title" gorm:"size:255"`
	VideoThumbnail  string      `json:"video_thumbnail" gorm:"size:512"`
	DurationSeconds int         `json:"duration_seconds"`
	Position        int         `json:"position" gorm:"not null"`
	Status          QueueStatus `json:"status" gorm:"size:12;not null;index:idx_queue_room_status"`
	IsApproved      bool        `json:"is_approved"`
	QueuedAt        time.Time   `json:"queued_at"`
	PlayedAt        *time.Time  `json:"played_at"`
	CompletedAt     *time.Time  `json:"completed_at"`

	Votes []Vote `json:"-" gorm:"foreignKey:QueueEntryID;constraint:OnDelete:CASCADE"`
}

func (QueueEntry) TableName() string { return "worship_queue_entries" }

func (e *QueueEntry) IsWaiting() bool  { return e.Status == QueueStatusWaiting }
func (e *QueueEntry) IsPlaying() bool  { return e.Status == QueueStatusPlaying }
func (e *QueueEntry) IsTerminal() bool { return e.Status.IsTerminal() }

func (e *QueueEntry) MarkAsPlaying(now time.Time) error {
	if !e.IsWaiting() {
		return apperr.ErrInvalidStateTransition.Withf("entry is %s, not WAITING", e.Status)
	}
	e.Status = QueueStatusPlaying
	played := now
	e.PlayedAt = &played
	return nil
}

func (e *QueueEntry) MarkAsCompleted(now time.Time) error {
	return e.finish(QueueStatusCompleted, now)
}

func (e *QueueEntry) MarkAsSkipped(now time.Time) error {
	return e.finish(QueueStatusSkipped, now)
}

func (e *QueueEntry) finish(status QueueStatus, now time.Time) error {
	if !e.IsPlaying() {
		return apperr.ErrInvalidStateTransition.Withf("entry is %s, not PLAYING", e.Status)
	}
	e.Status = status
	done := now
	e.CompletedAt = &done
	return nil
}

// CanBeEditedBy reports whether userID may change the entry: only the
// submitter, and only while it is still waiting.
func (e *QueueEntry) CanBeEditedBy(userID uuid.UUID) bool {
	return e.IsWaiting() && e.UserID == userID
}

// CanBeDeletedBy reports whether userID may remove the entry. The room
// creator may remove any entry; the submitter may remove it unless it is playing.
func (e *QueueEntry) CanBeDeletedBy(userID, roomCreatorID uuid.UUID) bool {
	if userID == roomCreatorID {
		return true
	}
	return e.UserID == userID && !e.IsPlaying()
}

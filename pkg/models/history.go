package models

import (
	"time"

	"github.com/google/uuid"
)

type PlayOutcome string

const (
	OutcomePlayed  PlayOutcome = "PLAYED"
	OutcomeSkipped PlayOutcome = "SKIPPED"
)

// PlayHistory is written once when a queue entry finishes and never updated.
type PlayHistory struct {
	ID               uuid.UUID   `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID           uuid.UUID   `json:"room_id" gorm:"type:char(36);not null;index:idx_history_room_ended"`
	QueueEntryID     uuid.UUID   `json:"queue_entry_id" gorm:"type:char(36);not null"`
	UserID           uuid.UUID   `json:"user_id" gorm:"type:char(36);not null"`
	VideoID          string      `json:"video_id" gorm:"size:32;not null;index"`
	VideoTitle       string      `json:"video_title" gorm:"size:255"`
	DurationSeconds  int         `json:"duration_seconds"`
	Outcome          PlayOutcome `json:"outcome" gorm:"size:10;not null"`
	SkipReason       string      `json:"skip_reason,omitempty" gorm:"size:32"`
	Upvotes          int         `json:"upvotes"`
	Skips            int         `json:"skips"`
	ParticipantCount int         `json:"participant_count"`
	StartedAt        *time.Time  `json:"started_at"`
	EndedAt          time.Time   `json:"ended_at" gorm:"index:idx_history_room_ended"`
}

func (PlayHistory) TableName() string { return "worship_play_history" }

func NewPlayHistory(entry *QueueEntry, tally VoteTally, participants int, outcome PlayOutcome, reason string, now time.Time) *PlayHistory {
	return &PlayHistory{
		ID:               uuid.New(),
		RoomID:           entry.RoomID,
		QueueEntryID:     entry.ID,
		UserID:           entry.UserID,
		VideoID:          entry.VideoID,
		VideoTitle:       entry.VideoTitle,
		DurationSeconds:  entry.DurationSeconds,
		Outcome:          outcome,
		SkipReason:       reason,
		Upvotes:          tally.Upvotes,
		Skips:            tally.Skips,
		ParticipantCount: participants,
		StartedAt:        entry.PlayedAt,
		EndedAt:          now,
	}
}

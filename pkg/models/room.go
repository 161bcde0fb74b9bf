package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
)

type RoomType string

const (
	RoomTypeLive      RoomType = "LIVE"
	RoomTypeTemplate  RoomType = "TEMPLATE"
	RoomTypeLiveEvent RoomType = "LIVE_EVENT"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeLive, RoomTypeTemplate, RoomTypeLiveEvent:
		return true
	}
	return false
}

type PlaybackStatus string

const (
	PlaybackStopped PlaybackStatus = "stopped"
	PlaybackPlaying PlaybackStatus = "playing"
	PlaybackPaused  PlaybackStatus = "paused"
)

const DefaultSkipThreshold = 0.5

type Room struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name" gorm:"size:120;not null"`
	Description string    `json:"description" gorm:"size:1000"`
	Type        RoomType  `json:"type" gorm:"size:20;not null;index"`
	CreatorID   uuid.UUID `json:"creator_id" gorm:"type:char(36);not null;index"`

	CurrentLeaderID       *uuid.UUID `json:"current_leader_id" gorm:"type:char(36)"`
	CurrentEntryID        *uuid.UUID `json:"current_entry_id" gorm:"type:char(36)"`
	CurrentVideoID        *string    `json:"current_video_id" gorm:"size:32"`
	CurrentVideoTitle     *string    `json:"current_video_title" gorm:"size:255"`
	CurrentVideoThumbnail *string    `json:"current_video_thumbnail" gorm:"size:512"`

	PlaybackStatus    PlaybackStatus `json:"playback_status" gorm:"size:10;not null;default:stopped"`
	PlaybackPosition  float64        `json:"playback_position"`
	PlaybackStartedAt *time.Time     `json:"playback_started_at"`

	IsPrivate       bool    `json:"is_private"`
	IsActive        bool    `json:"is_active" gorm:"index"`
	MaxParticipants int     `json:"max_participants"`
	SkipThreshold   float64 `json:"skip_threshold"`

	PlaylistID       *uuid.UUID `json:"playlist_id" gorm:"type:char(36)"`
	PlaylistPosition int        `json:"playlist_position"`

	ScheduledStartAt *time.Time `json:"scheduled_start_at"`
	ScheduledEndAt   *time.Time `json:"scheduled_end_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Room) TableName() string { return "worship_rooms" }

func (r *Room) IsPlaying() bool { return r.PlaybackStatus == PlaybackPlaying }
func (r *Room) IsPaused() bool  { return r.PlaybackStatus == PlaybackPaused }
func (r *Room) IsStopped() bool { return r.PlaybackStatus == PlaybackStopped || r.PlaybackStatus == "" }

// Play starts a video from the beginning. It always succeeds and replaces
// whatever was playing before.
func (r *Room) Play(videoID, title, thumbnail string, leaderID *uuid.UUID, now time.Time) {
	r.CurrentVideoID = &videoID
	r.CurrentVideoTitle = &title
	r.CurrentVideoThumbnail = &thumbnail
	r.CurrentLeaderID = leaderID
	r.PlaybackStatus = PlaybackPlaying
	r.PlaybackPosition = 0
	started := now
	r.PlaybackStartedAt = &started
}

// Pause freezes playback at position seconds.
func (r *Room) Pause(position float64, now time.Time) error {
	if !r.IsPlaying() {
		return apperr.ErrInvalidStateTransition.Withf("cannot pause while %s", r.status())
	}
	if position < 0 {
		position = 0
	}
	r.PlaybackStatus = PlaybackPaused
	r.PlaybackPosition = position
	r.PlaybackStartedAt = nil
	return nil
}

// Resume continues from the stored position. While playing, PlaybackPosition
// is the offset at PlaybackStartedAt.
func (r *Room) Resume(now time.Time) error {
	if !r.IsPaused() {
		return apperr.ErrInvalidStateTransition.Withf("cannot resume while %s", r.status())
	}
	r.PlaybackStatus = PlaybackPlaying
	started := now
	r.PlaybackStartedAt = &started
	return nil
}

func (r *Room) Seek(position float64, now time.Time) error {
	if r.IsStopped() {
		return apperr.ErrInvalidStateTransition.Withf("cannot seek while stopped")
	}
	if position < 0 {
		position = 0
	}
	r.PlaybackPosition = position
	if r.IsPlaying() {
		started := now
		r.PlaybackStartedAt = &started
	}
	return nil
}

// Stop clears the current video. Stopping a stopped room is a no-op.
func (r *Room) Stop() {
	r.CurrentVideoID = nil
	r.CurrentVideoTitle = nil
	r.CurrentVideoThumbnail = nil
	r.CurrentEntryID = nil
	r.PlaybackStartedAt = nil
	r.PlaybackPosition = 0
	r.PlaybackStatus = PlaybackStopped
}

// CurrentPosition returns the playback position in seconds at now.
func (r *Room) CurrentPosition(now time.Time) float64 {
	switch r.PlaybackStatus {
	case PlaybackPlaying:
		if r.PlaybackStartedAt == nil {
			return r.PlaybackPosition
		}
		elapsed := now.Sub(*r.PlaybackStartedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		return r.PlaybackPosition + elapsed
	case PlaybackPaused:
		return r.PlaybackPosition
	default:
		return 0
	}
}

func (r *Room) IsCreator(userID uuid.UUID) bool {
	return r.CreatorID == userID
}

func (r *Room) IsLeader(userID uuid.UUID) bool {
	return r.CurrentLeaderID != nil && *r.CurrentLeaderID == userID
}

// CanUserJoin reports whether userID may join given the current number of
// active participants and whether the user is already one of them.
func (r *Room) CanUserJoin(userID uuid.UUID, activeParticipants int, alreadyParticipant bool) bool {
	if !r.IsActive {
		return false
	}
	if r.IsPrivate && !r.IsCreator(userID) {
		return false
	}
	if r.MaxParticipants > 0 && activeParticipants >= r.MaxParticipants {
		return false
	}
	return !alreadyParticipant
}

// ShouldAutoStart reports whether a scheduled event room is due to open.
func (r *Room) ShouldAutoStart(now time.Time) bool {
	if r.Type != RoomTypeLiveEvent || r.IsActive || r.ScheduledStartAt == nil {
		return false
	}
	if now.Before(*r.ScheduledStartAt) {
		return false
	}
	return r.ScheduledEndAt == nil || now.Before(*r.ScheduledEndAt)
}

// ShouldAutoEnd reports whether an open event room has passed its end time.
func (r *Room) ShouldAutoEnd(now time.Time) bool {
	if r.Type != RoomTypeLiveEvent || !r.IsActive || r.ScheduledEndAt == nil {
		return false
	}
	return !now.Before(*r.ScheduledEndAt)
}

func (r *Room) status() PlaybackStatus {
	if r.PlaybackStatus == "" {
		return PlaybackStopped
	}
	return r.PlaybackStatus
}

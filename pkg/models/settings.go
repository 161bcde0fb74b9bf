package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type RoomSettings struct {
	RoomID                 uuid.UUID `json:"room_id" gorm:"type:char(36);primaryKey"`
	MaxQueueSize           int       `json:"max_queue_size"`
	MaxSongsPerUser        int       `json:"max_songs_per_user"`
	MinSongDurationSeconds int       `json:"min_song_duration_seconds"`
	MaxSongDurationSeconds int       `json:"max_song_duration_seconds"`
	SkipThreshold          float64   `json:"skip_threshold"`
	WaitlistEnabled        bool      `json:"waitlist_enabled"`
	MaxWaitlistSize        int       `json:"max_waitlist_size"`
	AfkTimeoutMinutes      int       `json:"afk_timeout_minutes"`
	AutoAdvance            bool      `json:"auto_advance"`
	AllowDuplicates        bool      `json:"allow_duplicates"`
	SongCooldownHours      int       `json:"song_cooldown_hours"`
	RequireApproval        bool      `json:"require_approval"`
	ChatSlowModeSeconds    int       `json:"chat_slow_mode_seconds"`
	BannedVideoIDs         []string  `json:"banned_video_ids" gorm:"serializer:json;type:text"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (RoomSettings) TableName() string { return "worship_room_settings" }

func DefaultRoomSettings(roomID uuid.UUID) *RoomSettings {
	return &RoomSettings{
		RoomID:                 roomID,
		MaxQueueSize:           50,
		MaxSongsPerUser:        3,
		MinSongDurationSeconds: 0,
		MaxSongDurationSeconds: 15 * 60,
		SkipThreshold:          DefaultSkipThreshold,
		WaitlistEnabled:        true,
		MaxWaitlistSize:        25,
		AfkTimeoutMinutes:      15,
		AutoAdvance:            true,
		AllowDuplicates:        false,
		SongCooldownHours:      2,
		RequireApproval:        false,
		ChatSlowModeSeconds:    0,
		BannedVideoIDs:         []string{},
	}
}

func (s *RoomSettings) IsBanned(videoID string) bool {
	return slices.Contains(s.BannedVideoIDs, videoID)
}

// DurationAllowed checks a duration against the configured bounds. Unknown
// durations (0) pass; zero bounds are unlimited.
func (s *RoomSettings) DurationAllowed(seconds int) bool {
	if seconds <= 0 {
		return true
	}
	if s.MinSongDurationSeconds > 0 && seconds < s.MinSongDurationSeconds {
		return false
	}
	if s.MaxSongDurationSeconds > 0 && seconds > s.MaxSongDurationSeconds {
		return false
	}
	return true
}

func (s *RoomSettings) Clone() *RoomSettings {
	c := *s
	c.BannedVideoIDs = slices.Clone(s.BannedVideoIDs)
	return &c
}

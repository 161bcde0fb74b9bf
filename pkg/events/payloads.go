package events

import "time"

// Event payload types

type ParticipantPayload struct {
	UserID           string `json:"user_id"`
	Role             string `json:"role"`
	IsInWaitlist     bool   `json:"is_in_waitlist"`
	WaitlistPosition *int   `json:"waitlist_position,omitempty"`
}

type LeaderChangedPayload struct {
	PreviousLeaderID string `json:"previous_leader_id,omitempty"`
	LeaderID         string `json:"leader_id,omitempty"`
}

type WaitlistPayload struct {
	UserIDs []string `json:"user_ids"`
}

type SongPayload struct {
	EntryID         string `json:"entry_id"`
	UserID          string `json:"user_id"`
	VideoID         string `json:"video_id"`
	VideoTitle      string `json:"video_title"`
	VideoThumbnail  string `json:"video_thumbnail"`
	DurationSeconds int    `json:"duration_seconds"`
	Position        int    `json:"position"`
	Status          string `json:"status"`
	IsApproved      bool   `json:"is_approved"`
}

type QueueOrderPayload struct {
	EntryIDs []string `json:"entry_ids"`
}

type SongVotedPayload struct {
	EntryID  string `json:"entry_id"`
	VoteType string `json:"vote_type"`
	Upvotes  int    `json:"upvotes"`
	Skips    int    `json:"skips"`
	Active   int    `json:"active_participants"`
}

type SongFinishedPayload struct {
	EntryID string `json:"entry_id"`
	VideoID string `json:"video_id"`
	Reason  string `json:"reason,omitempty"`
	Upvotes int    `json:"upvotes"`
	Skips   int    `json:"skips"`
}

type PlaybackPayload struct {
	Status          string     `json:"status"`
	EntryID         string     `json:"entry_id,omitempty"`
	VideoID         string     `json:"video_id,omitempty"`
	VideoTitle      string     `json:"video_title,omitempty"`
	VideoThumbnail  string     `json:"video_thumbnail,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	Position        float64    `json:"position"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LeaderID        string     `json:"leader_id,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type PlaylistPayload struct {
	PlaylistID string `json:"playlist_id,omitempty"`
	Position   int    `json:"position"`
}

package room

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

// SystemUser stands in for the scheduler on commands that a person would
// otherwise have to be allowed to run.
var SystemUser = uuid.Nil

const maxChatLength = 500

type CreateRoomRequest struct {
	Name             string          `json:"name" binding:"required"`
	Description      string          `json:"description"`
	Type             models.RoomType `json:"type"`
	IsPrivate        bool            `json:"is_private"`
	MaxParticipants  int             `json:"max_participants"`
	TemplateID       *uuid.UUID      `json:"template_id"`
	PlaylistID       *uuid.UUID      `json:"playlist_id"`
	ScheduledStartAt *time.Time      `json:"scheduled_start_at"`
	ScheduledEndAt   *time.Time      `json:"scheduled_end_at"`
}

type SettingsUpdate struct {
	MaxQueueSize           *int     `json:"max_queue_size"`
	MaxSongsPerUser        *int     `json:"max_songs_per_user"`
	MinSongDurationSeconds *int     `json:"min_song_duration_seconds"`
	MaxSongDurationSeconds *int     `json:"max_song_duration_seconds"`
	SkipThreshold          *float64 `json:"skip_threshold"`
	WaitlistEnabled        *bool    `json:"waitlist_enabled"`
	MaxWaitlistSize        *int     `json:"max_waitlist_size"`
	AfkTimeoutMinutes      *int     `json:"afk_timeout_minutes"`
	AutoAdvance            *bool    `json:"auto_advance"`
	AllowDuplicates        *bool    `json:"allow_duplicates"`
	SongCooldownHours      *int     `json:"song_cooldown_hours"`
	RequireApproval        *bool    `json:"require_approval"`
	ChatSlowModeSeconds    *int     `json:"chat_slow_mode_seconds"`
	BannedVideoIDs         []string `json:"banned_video_ids"`
}

// CreateRoom stores a new room with default settings, or with the settings
// of the TEMPLATE room it is created from. Templates and scheduled events
// start inactive.
func (c *Coordinator) CreateRoom(ctx context.Context, creatorID uuid.UUID, req CreateRoomRequest) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.ErrInvalidInput.Withf("name is required")
	}
	if req.Type == "" {
		req.Type = models.RoomTypeLive
	}
	if !req.Type.Valid() {
		return nil, apperr.ErrInvalidInput.Withf("unknown room type %q", req.Type)
	}
	if req.MaxParticipants < 0 {
		return nil, apperr.ErrInvalidInput.Withf("max_participants must not be negative")
	}
	if req.Type == models.RoomTypeLiveEvent && req.ScheduledStartAt == nil {
		return nil, apperr.ErrInvalidInput.Withf("live events need scheduled_start_at")
	}
	if req.ScheduledStartAt != nil && req.ScheduledEndAt != nil && !req.ScheduledEndAt.After(*req.ScheduledStartAt) {
		return nil, apperr.ErrInvalidInput.Withf("scheduled_end_at must be after scheduled_start_at")
	}

	now := c.now()
	room := &models.Room{
		ID:               uuid.New(),
		Name:             req.Name,
		Description:      req.Description,
		Type:             req.Type,
		CreatorID:        creatorID,
		PlaybackStatus:   models.PlaybackStopped,
		IsPrivate:        req.IsPrivate,
		IsActive:         req.Type == models.RoomTypeLive,
		MaxParticipants:  req.MaxParticipants,
		SkipThreshold:    models.DefaultSkipThreshold,
		PlaylistID:       req.PlaylistID,
		ScheduledStartAt: req.ScheduledStartAt,
		ScheduledEndAt:   req.ScheduledEndAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	settings := models.DefaultRoomSettings(room.ID)

	if req.TemplateID != nil {
		template, err := c.store.LoadRoom(ctx, *req.TemplateID, now)
		if err != nil {
			return nil, err
		}
		if template.Room.Type != models.RoomTypeTemplate {
			return nil, apperr.ErrInvalidInput.Withf("room %s is not a template", *req.TemplateID)
		}
		settings = template.Settings.Clone()
		settings.RoomID = room.ID
		room.SkipThreshold = settings.SkipThreshold
		if room.PlaylistID == nil {
			room.PlaylistID = template.Room.PlaylistID
		}
		if req.MaxParticipants == 0 {
			room.MaxParticipants = template.Room.MaxParticipants
		}
	}
	if room.PlaylistID != nil {
		if _, err := c.store.GetPlaylist(ctx, *room.PlaylistID); err != nil {
			return nil, err
		}
	}

	if err := c.store.CreateRoom(ctx, room, settings); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if c.publisher != nil {
		event, err := events.NewEvent(events.EventTypeRoomCreated, room.ID.String(), creatorID.String(), room, now)
		if err == nil {
			err = c.publisher.Publish(ctx, event)
		}
		if err != nil {
			logPublishFailure(room.ID, err)
		}
	}
	return room, nil
}

func (c *Coordinator) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return c.store.GetRoom(ctx, roomID)
}

func (c *Coordinator) ListRooms(ctx context.Context, filter database.RoomFilter) ([]*models.Room, error) {
	return c.store.ListRooms(ctx, filter)
}

func (c *Coordinator) History(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.PlayHistory, error) {
	if _, err := c.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return c.store.ListHistory(ctx, roomID, limit)
}

// ActivateRoom opens an inactive LIVE or LIVE_EVENT room. Only the creator
// or the scheduler may do it.
func (c *Coordinator) ActivateRoom(ctx context.Context, roomID, actorID uuid.UUID) error {
	return c.do(ctx, roomID, "activate", func(s *roomState) error {
		if actorID != SystemUser && !s.room.IsCreator(actorID) {
			return apperr.ErrNotPermitted.Withf("only the creator can open the room")
		}
		if s.room.Type == models.RoomTypeTemplate {
			return apperr.ErrInvalidStateTransition.Withf("templates cannot be opened")
		}
		if s.room.IsActive {
			return apperr.ErrInvalidStateTransition.Withf("room is already active")
		}
		s.room.IsActive = true
		s.markRoom()
		s.emit(events.EventTypeRoomActivated, actorID, nil)
		return nil
	})
}

// CloseRoom ends playback, sends everybody out and deactivates the room.
// Closing a closed room does nothing.
func (c *Coordinator) CloseRoom(ctx context.Context, roomID, actorID uuid.UUID) error {
	return c.do(ctx, roomID, "close", func(s *roomState) error {
		if actorID != SystemUser {
			if err := s.moderator(actorID, "close the room"); err != nil {
				return err
			}
		}
		if !s.room.IsActive {
			return nil
		}

		if err := s.finishCurrent(models.OutcomeSkipped, reasonClosed); err != nil {
			return err
		}
		s.room.Stop()
		for _, p := range s.activeParticipants() {
			p.Leave(s.now)
			if p.Role == models.RoleLeader {
				p.Role = models.RoleDJ
			}
			s.markParticipant(p)
		}
		s.room.CurrentLeaderID = nil
		s.room.IsActive = false
		s.markRoom()
		s.emit(events.EventTypeRoomClosed, actorID, nil)
		return nil
	})
}

func (u SettingsUpdate) validate() error {
	nonNegative := map[string]*int{
		"max_queue_size":            u.MaxQueueSize,
		"max_songs_per_user":        u.MaxSongsPerUser,
		"min_song_duration_seconds": u.MinSongDurationSeconds,
		"max_song_duration_seconds": u.MaxSongDurationSeconds,
		"max_waitlist_size":         u.MaxWaitlistSize,
		"afk_timeout_minutes":       u.AfkTimeoutMinutes,
		"song_cooldown_hours":       u.SongCooldownHours,
		"chat_slow_mode_seconds":    u.ChatSlowModeSeconds,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return apperr.ErrInvalidInput.Withf("%s must not be negative", name)
		}
	}
	if u.SkipThreshold != nil && (*u.SkipThreshold <= 0 || *u.SkipThreshold > 1) {
		return apperr.ErrInvalidInput.Withf("skip_threshold must be in (0, 1]")
	}
	return nil
}

func (u SettingsUpdate) apply(s *models.RoomSettings) {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setInt(&s.MaxQueueSize, u.MaxQueueSize)
	setInt(&s.MaxSongsPerUser, u.MaxSongsPerUser)
	setInt(&s.MinSongDurationSeconds, u.MinSongDurationSeconds)
	setInt(&s.MaxSongDurationSeconds, u.MaxSongDurationSeconds)
	setInt(&s.MaxWaitlistSize, u.MaxWaitlistSize)
	setInt(&s.AfkTimeoutMinutes, u.AfkTimeoutMinutes)
	setInt(&s.SongCooldownHours, u.SongCooldownHours)
	setInt(&s.ChatSlowModeSeconds, u.ChatSlowModeSeconds)
	setBool(&s.WaitlistEnabled, u.WaitlistEnabled)
	setBool(&s.AutoAdvance, u.AutoAdvance)
	setBool(&s.AllowDuplicates, u.AllowDuplicates)
	setBool(&s.RequireApproval, u.RequireApproval)
	if u.SkipThreshold != nil {
		s.SkipThreshold = *u.SkipThreshold
	}
	if u.BannedVideoIDs != nil {
		s.BannedVideoIDs = append([]string{}, u.BannedVideoIDs...)
	}
}

// UpdateSettings changes room settings. A new skip threshold is applied to
// the playing entry immediately.
func (c *Coordinator) UpdateSettings(ctx context.Context, roomID, userID uuid.UUID, update SettingsUpdate) (*models.RoomSettings, error) {
	if err := update.validate(); err != nil {
		return nil, err
	}

	var updated models.RoomSettings
	err := c.do(ctx, roomID, "update_settings", func(s *roomState) error {
		if err := s.moderator(userID, "change settings"); err != nil {
			return err
		}

		update.apply(s.settings)
		lo, hi := s.settings.MinSongDurationSeconds, s.settings.MaxSongDurationSeconds
		if lo > 0 && hi > 0 && lo > hi {
			return apperr.ErrInvalidInput.Withf("min_song_duration_seconds is above max_song_duration_seconds")
		}
		s.settings.UpdatedAt = s.now
		s.markSettings()
		s.room.SkipThreshold = s.settings.SkipThreshold
		s.markRoom()

		if !s.settings.WaitlistEnabled {
			for _, w := range s.waitlist() {
				w.LeaveWaitlist()
				s.markParticipant(w)
			}
		}
		s.emit(events.EventTypeSettingsUpdated, userID, s.settings)

		if _, err := s.evaluateSkip(); err != nil {
			return err
		}
		updated = *s.settings.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AttachPlaylist sets the playlist the room falls back to when its queue is
// empty, starting from the first item.
func (c *Coordinator) AttachPlaylist(ctx context.Context, roomID, userID, playlistID uuid.UUID) error {
	playlist, err := c.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	return c.do(ctx, roomID, "attach_playlist", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		id := playlist.ID
		s.room.PlaylistID = &id
		s.room.PlaylistPosition = 0
		s.playlist = playlist
		s.markRoom()
		s.emit(events.EventTypePlaylistAttached, userID, events.PlaylistPayload{PlaylistID: id.String()})
		return s.autoStart()
	})
}

func (c *Coordinator) DetachPlaylist(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "detach_playlist", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		if s.room.PlaylistID == nil {
			return nil
		}
		s.room.PlaylistID = nil
		s.room.PlaylistPosition = 0
		s.playlist = nil
		s.markRoom()
		s.emit(events.EventTypePlaylistDetached, userID, events.PlaylistPayload{})
		return nil
	})
}

// Chat relays a message to the room. Messages are not stored; slow mode
// limits each participant to one message per window.
func (c *Coordinator) Chat(ctx context.Context, roomID, userID uuid.UUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.ErrInvalidInput.Withf("message is empty")
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		return apperr.ErrInvalidInput.Withf("message is longer than %d characters", maxChatLength)
	}

	var window int
	var exempt bool
	err := c.view(ctx, roomID, func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		window = s.settings.ChatSlowModeSeconds
		exempt = s.canModerate(p)
		return nil
	})
	if err != nil {
		return err
	}

	// The redis round trip stays outside the actor.
	throttled := window > 0 && c.throttle != nil && !exempt
	key := fmt.Sprintf("%s:%s", roomID, userID)
	if throttled {
		ok, err := c.throttle.Allow(ctx, key, time.Duration(window)*time.Second)
		if err != nil {
			return apperr.ErrInternal.Wrap(err)
		}
		if !ok {
			return apperr.ErrChatThrottled
		}
	}

	err = c.do(ctx, roomID, "chat", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		p.Touch(s.now)
		s.markParticipant(p)
		s.emit(events.EventTypeChatMessage, userID, events.ChatPayload{Text: text})
		return nil
	})
	if err != nil && throttled {
		if rerr := c.throttle.Release(ctx, key); rerr != nil {
			log.Printf("room %s: %v", roomID, rerr)
		}
	}
	return err
}

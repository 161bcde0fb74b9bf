package room

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

type EnqueueRequest struct {
	VideoID         string `json:"video_id" binding:"required"`
	VideoTitle      string `json:"video_title"`
	VideoThumbnail  string `json:"video_thumbnail"`
	DurationSeconds int    `json:"duration_seconds"`
}

type EntryUpdate struct {
	VideoTitle     *string `json:"video_title"`
	VideoThumbnail *string `json:"video_thumbnail"`
}

func songPayload(e *models.QueueEntry) events.SongPayload {
	return events.SongPayload{
		EntryID:         e.ID.String(),
		UserID:          e.UserID.String(),
		VideoID:         e.VideoID,
		VideoTitle:      e.VideoTitle,
		VideoThumbnail:  e.VideoThumbnail,
		DurationSeconds: e.DurationSeconds,
		Position:        e.Position,
		Status:          string(e.Status),
		IsApproved:      e.IsApproved,
	}
}

// checkEnqueue applies the room's queue rules in a fixed order so the
// caller always gets the first rule that failed.
func (s *roomState) checkEnqueue(p *models.Participant, req EnqueueRequest) error {
	if !p.CanAddToQueue() && !s.room.IsCreator(p.UserID) {
		return apperr.ErrNotPermitted.Withf("role %s cannot add songs", p.Role)
	}
	if s.settings.IsBanned(req.VideoID) {
		return apperr.ErrVideoBanned
	}
	if !s.settings.DurationAllowed(req.DurationSeconds) {
		return apperr.ErrDurationOutOfBounds.Withf("%ds is outside %d..%ds",
			req.DurationSeconds, s.settings.MinSongDurationSeconds, s.settings.MaxSongDurationSeconds)
	}
	if limit := s.settings.MaxQueueSize; limit > 0 && len(s.waiting()) >= limit {
		return apperr.ErrQueueFull
	}
	if limit := s.settings.MaxSongsPerUser; limit > 0 && s.queuedBy(p.UserID) >= limit {
		return apperr.ErrUserSongLimit
	}
	if !s.settings.AllowDuplicates && s.isQueued(req.VideoID) {
		return apperr.ErrDuplicateSong
	}
	if s.onCooldown(req.VideoID) {
		return apperr.ErrSongCooldownActive
	}
	return nil
}

// Enqueue appends a song to the queue. A stopped auto-advancing room starts
// playing it right away.
func (c *Coordinator) Enqueue(ctx context.Context, roomID, userID uuid.UUID, req EnqueueRequest) (*models.QueueEntry, error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		return nil, apperr.ErrInvalidInput.Withf("video_id is required")
	}
	if req.DurationSeconds < 0 {
		return nil, apperr.ErrInvalidInput.Withf("duration_seconds must not be negative")
	}

	var added models.QueueEntry
	err := c.do(ctx, roomID, "enqueue", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		if err := s.checkEnqueue(p, req); err != nil {
			return err
		}

		entry := &models.QueueEntry{
			ID:              uuid.New(),
			RoomID:          s.room.ID,
			UserID:          userID,
			VideoID:         req.VideoID,
			VideoTitle:      req.VideoTitle,
			VideoThumbnail:  req.VideoThumbnail,
			DurationSeconds: req.DurationSeconds,
			Position:        s.appendPosition(),
			Status:          models.QueueStatusWaiting,
			IsApproved:      !s.settings.RequireApproval || s.canModerate(p),
			QueuedAt:        s.now,
		}
		s.addEntry(entry)
		p.Touch(s.now)
		s.markParticipant(p)
		s.emit(events.EventTypeSongAdded, userID, songPayload(entry))

		if err := s.autoStart(); err != nil {
			return err
		}
		added = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// autoStart begins playback in a stopped room that auto-advances.
func (s *roomState) autoStart() error {
	if !s.settings.AutoAdvance || !s.room.IsStopped() || s.current() != nil {
		return nil
	}
	return s.advance()
}

// EditEntry corrects the metadata of a waiting entry. Only its submitter
// may edit it.
func (c *Coordinator) EditEntry(ctx context.Context, roomID, userID, entryID uuid.UUID, update EntryUpdate) (*models.QueueEntry, error) {
	var edited models.QueueEntry
	err := c.do(ctx, roomID, "edit_entry", func(s *roomState) error {
		if _, err := s.member(userID); err != nil {
			return err
		}
		e, err := s.entry(entryID)
		if err != nil {
			return err
		}
		if !e.CanBeEditedBy(userID) {
			return apperr.ErrNotPermitted.Withf("only the submitter can edit a waiting entry")
		}
		if update.VideoTitle != nil {
			e.VideoTitle = *update.VideoTitle
		}
		if update.VideoThumbnail != nil {
			e.VideoThumbnail = *update.VideoThumbnail
		}
		s.markEntry(e)
		s.emit(events.EventTypeSongUpdated, userID, songPayload(e))
		edited = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &edited, nil
}

// RemoveEntry deletes a waiting entry. Removing the playing entry (creator
// or moderator only) skips it so it still reaches the history.
func (c *Coordinator) RemoveEntry(ctx context.Context, roomID, userID, entryID uuid.UUID) error {
	return c.do(ctx, roomID, "remove_entry", func(s *roomState) error {
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		e, err := s.entry(entryID)
		if err != nil {
			return err
		}
		if !e.CanBeDeletedBy(userID, s.room.CreatorID) && !s.canModerate(p) {
			return apperr.ErrNotPermitted.Withf("cannot remove this entry")
		}

		if e.IsPlaying() {
			return s.skipCurrent(reasonRemoved)
		}
		s.removeEntry(e)
		s.emit(events.EventTypeSongRemoved, userID, songPayload(e))
		return nil
	})
}

// MoveEntry puts a waiting entry at index in the waiting queue.
func (c *Coordinator) MoveEntry(ctx context.Context, roomID, userID, entryID uuid.UUID, index int) error {
	return c.do(ctx, roomID, "move_entry", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		e, err := s.entry(entryID)
		if err != nil {
			return err
		}
		if !e.IsWaiting() {
			return apperr.ErrInvalidStateTransition.Withf("only waiting entries can be moved")
		}
		s.move(e, index)
		s.emit(events.EventTypeQueueReordered, userID, events.QueueOrderPayload{EntryIDs: s.queueOrder()})
		return nil
	})
}

// ApproveEntry releases an entry held for approval.
func (c *Coordinator) ApproveEntry(ctx context.Context, roomID, userID, entryID uuid.UUID) error {
	return c.do(ctx, roomID, "approve_entry", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		if !s.canModerate(p) {
			return apperr.ErrNotPermitted.Withf("only moderators can approve songs")
		}
		e, err := s.entry(entryID)
		if err != nil {
			return err
		}
		if e.IsApproved {
			return nil
		}
		e.IsApproved = true
		s.markEntry(e)
		s.emit(events.EventTypeSongUpdated, userID, songPayload(e))
		return s.autoStart()
	})
}

// Queue lists waiting entries in play order.
func (c *Coordinator) Queue(ctx context.Context, roomID uuid.UUID) ([]EntryView, error) {
	var views []EntryView
	err := c.view(ctx, roomID, func(s *roomState) error {
		active := s.activeCount()
		views = make([]EntryView, 0, len(s.entries))
		for _, e := range s.waiting() {
			views = append(views, s.entryView(e, active))
		}
		return nil
	})
	return views, err
}

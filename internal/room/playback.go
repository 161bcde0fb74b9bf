package room

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

// advance starts the next approved waiting entry, falls back to the attached
// playlist and stops the room when neither has anything left.
func (s *roomState) advance() error {
	if next := s.nextPlayable(); next != nil {
		return s.start(next)
	}
	if entry := s.takePlaylistItem(); entry != nil {
		return s.start(entry)
	}
	if !s.room.IsStopped() || s.room.CurrentVideoID != nil {
		s.room.Stop()
		s.markRoom()
		s.emit(events.EventTypePlaybackStopped, uuid.Nil, s.playbackPayload(nil))
	}
	return nil
}

// start claims the PLAYING slot for e.
func (s *roomState) start(e *models.QueueEntry) error {
	if cur := s.current(); cur != nil && cur.ID != e.ID {
		return apperr.ErrConcurrentModification.Withf("entry %s is still playing", cur.ID)
	}
	if err := e.MarkAsPlaying(s.now); err != nil {
		return err
	}
	s.claim(e)

	s.room.Play(e.VideoID, e.VideoTitle, e.VideoThumbnail, s.room.CurrentLeaderID, s.now)
	id := e.ID
	s.room.CurrentEntryID = &id
	s.markRoom()

	var leader uuid.UUID
	if s.room.CurrentLeaderID != nil {
		leader = *s.room.CurrentLeaderID
	}
	s.emit(events.EventTypeSongStarted, leader, s.playbackPayload(e))
	return nil
}

// takePlaylistItem turns the next playable playlist item into a queue entry.
// Banned items are passed over.
func (s *roomState) takePlaylistItem() *models.QueueEntry {
	if s.playlist == nil || s.room.PlaylistID == nil || *s.room.PlaylistID != s.playlist.ID {
		return nil
	}
	for {
		item, ok := s.playlist.ItemAt(s.room.PlaylistPosition)
		if !ok {
			return nil
		}
		s.room.PlaylistPosition++
		s.markRoom()
		if s.settings.IsBanned(item.VideoID) || !s.settings.DurationAllowed(item.DurationSeconds) {
			continue
		}

		entry := &models.QueueEntry{
			ID:              uuid.New(),
			RoomID:          s.room.ID,
			UserID:          s.playlist.OwnerID,
			VideoID:         item.VideoID,
			VideoTitle:      item.VideoTitle,
			VideoThumbnail:  item.VideoThumbnail,
			DurationSeconds: item.DurationSeconds,
			Position:        s.appendPosition(),
			Status:          models.QueueStatusWaiting,
			IsApproved:      true,
			QueuedAt:        s.now,
		}
		s.addEntry(entry)
		return entry
	}
}

// finishCurrent moves the playing entry to its terminal status and writes
// the history snapshot. The caller advances afterwards.
func (s *roomState) finishCurrent(outcome models.PlayOutcome, reason string) error {
	cur := s.current()
	if cur == nil {
		return nil
	}
	tally := s.tally(cur.ID)

	var err error
	eventType := events.EventTypeSongCompleted
	if outcome == models.OutcomeSkipped {
		err = cur.MarkAsSkipped(s.now)
		eventType = events.EventTypeSongSkipped
	} else {
		err = cur.MarkAsCompleted(s.now)
	}
	if err != nil {
		return err
	}

	s.addHistory(models.NewPlayHistory(cur, tally, s.activeCount(), outcome, reason, s.now))
	s.retire(cur)
	s.room.CurrentEntryID = nil
	s.markRoom()

	s.emit(eventType, cur.UserID, events.SongFinishedPayload{
		EntryID: cur.ID.String(),
		VideoID: cur.VideoID,
		Reason:  reason,
		Upvotes: tally.Upvotes,
		Skips:   tally.Skips,
	})
	return nil
}

func (s *roomState) completeCurrent() error {
	if err := s.finishCurrent(models.OutcomePlayed, reasonCompleted); err != nil {
		return err
	}
	if !s.settings.AutoAdvance {
		s.room.Stop()
		s.markRoom()
		s.emit(events.EventTypePlaybackStopped, uuid.Nil, s.playbackPayload(nil))
		return nil
	}
	return s.advance()
}

func (s *roomState) skipCurrent(reason string) error {
	if err := s.finishCurrent(models.OutcomeSkipped, reason); err != nil {
		return err
	}
	return s.advance()
}

func (s *roomState) playbackPayload(e *models.QueueEntry) events.PlaybackPayload {
	p := events.PlaybackPayload{
		Status:    string(s.room.PlaybackStatus),
		Position:  s.room.CurrentPosition(s.now),
		StartedAt: s.room.PlaybackStartedAt,
	}
	if s.room.CurrentLeaderID != nil {
		p.LeaderID = s.room.CurrentLeaderID.String()
	}
	if e != nil {
		p.EntryID = e.ID.String()
		p.VideoID = e.VideoID
		p.VideoTitle = e.VideoTitle
		p.VideoThumbnail = e.VideoThumbnail
		p.DurationSeconds = e.DurationSeconds
	}
	return p
}

// controller returns the caller if they may drive playback.
func (s *roomState) controller(userID uuid.UUID) (*models.Participant, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	p, err := s.member(userID)
	if err != nil {
		return nil, err
	}
	if !s.canControlPlayback(p) {
		return nil, apperr.ErrNotPermitted.Withf("role %s cannot control playback", p.Role)
	}
	p.Touch(s.now)
	s.markParticipant(p)
	return p, nil
}

// Play starts the queue in a stopped room.
func (c *Coordinator) Play(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "play", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		if !s.room.IsStopped() {
			return apperr.ErrInvalidStateTransition.Withf("room is already %s", s.room.PlaybackStatus)
		}
		if err := s.advance(); err != nil {
			return err
		}
		if s.room.IsStopped() {
			return apperr.ErrInvalidStateTransition.Withf("nothing to play")
		}
		return nil
	})
}

// Pause freezes playback. A nil position uses the server's own clock.
func (c *Coordinator) Pause(ctx context.Context, roomID, userID uuid.UUID, position *float64) error {
	return c.do(ctx, roomID, "pause", func(s *roomState) error {
		p, err := s.controller(userID)
		if err != nil {
			return err
		}
		at := s.room.CurrentPosition(s.now)
		if position != nil {
			at = *position
		}
		if err := s.room.Pause(at, s.now); err != nil {
			return err
		}
		s.markRoom()
		s.emit(events.EventTypePlaybackPaused, p.UserID, s.playbackPayload(s.current()))
		return nil
	})
}

func (c *Coordinator) Resume(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "resume", func(s *roomState) error {
		p, err := s.controller(userID)
		if err != nil {
			return err
		}
		if err := s.room.Resume(s.now); err != nil {
			return err
		}
		s.markRoom()
		s.emit(events.EventTypePlaybackResumed, p.UserID, s.playbackPayload(s.current()))
		return nil
	})
}

func (c *Coordinator) Seek(ctx context.Context, roomID, userID uuid.UUID, position float64) error {
	return c.do(ctx, roomID, "seek", func(s *roomState) error {
		p, err := s.controller(userID)
		if err != nil {
			return err
		}
		cur := s.current()
		if cur != nil && cur.DurationSeconds > 0 && position > float64(cur.DurationSeconds) {
			return apperr.ErrInvalidInput.Withf("position %.1f is past the end of the video", position)
		}
		if err := s.room.Seek(position, s.now); err != nil {
			return err
		}
		s.markRoom()
		s.emit(events.EventTypePlaybackSeeked, p.UserID, s.playbackPayload(cur))
		return nil
	})
}

// Skip ends the playing entry early and advances.
func (c *Coordinator) Skip(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "skip", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		if s.current() == nil {
			return apperr.ErrInvalidStateTransition.Withf("nothing is playing")
		}
		return s.skipCurrent(reasonManual)
	})
}

// Stop ends the playing entry and leaves the room stopped.
func (c *Coordinator) Stop(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "stop", func(s *roomState) error {
		p, err := s.controller(userID)
		if err != nil {
			return err
		}
		if err := s.finishCurrent(models.OutcomeSkipped, reasonStopped); err != nil {
			return err
		}
		if s.room.IsStopped() && s.room.CurrentVideoID == nil {
			return nil
		}
		s.room.Stop()
		s.markRoom()
		s.emit(events.EventTypePlaybackStopped, p.UserID, s.playbackPayload(nil))
		return nil
	})
}

// Complete reports that entryID finished playing on the client. Reports for
// an entry that is no longer current are rejected.
func (c *Coordinator) Complete(ctx context.Context, roomID, userID, entryID uuid.UUID) error {
	return c.do(ctx, roomID, "complete", func(s *roomState) error {
		if _, err := s.controller(userID); err != nil {
			return err
		}
		cur := s.current()
		if cur == nil || cur.ID != entryID {
			return apperr.ErrConcurrentModification.Withf("entry %s is not playing", entryID)
		}
		return s.completeCurrent()
	})
}

// Position returns the server's view of the playback position.
func (c *Coordinator) Position(ctx context.Context, roomID uuid.UUID) (float64, time.Time, error) {
	var (
		pos float64
		at  time.Time
	)
	err := c.view(ctx, roomID, func(s *roomState) error {
		at = s.now
		pos = s.room.CurrentPosition(s.now)
		return nil
	})
	return pos, at, err
}

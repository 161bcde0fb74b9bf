package room

import (
	"context"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

// Join adds userID to the room, or reactivates their earlier row. The
// creator joins as moderator, everyone else as listener.
func (c *Coordinator) Join(ctx context.Context, roomID, userID uuid.UUID) (*models.Participant, error) {
	var joined models.Participant
	err := c.do(ctx, roomID, "join", func(s *roomState) error {
		existing, known := s.participants[userID]
		if known && existing.IsActive {
			return apperr.ErrAlreadyJoined
		}
		if !s.room.CanUserJoin(userID, s.activeCount(), false) {
			switch {
			case !s.room.IsActive:
				return apperr.ErrRoomInactive
			case s.room.IsPrivate && !s.room.IsCreator(userID):
				return apperr.ErrNotPermitted.Withf("room is private")
			default:
				return apperr.ErrRoomFull
			}
		}

		p := existing
		if known {
			p.Rejoin(s.now)
		} else {
			role := models.RoleListener
			if s.room.IsCreator(userID) {
				role = models.RoleModerator
			}
			p = models.NewParticipant(s.room.ID, userID, role, s.now)
			s.participants[userID] = p
		}
		s.markParticipant(p)
		s.emit(events.EventTypeUserJoined, userID, participantPayload(p))

		// A bigger audience can only lower the skip share, so no skip check.
		joined = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &joined, nil
}

// Leave removes userID from the room. Leaving twice is not an error.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "leave", func(s *roomState) error {
		p, ok := s.participants[userID]
		if !ok {
			return apperr.ErrNotParticipant
		}
		if !p.IsActive {
			p.Leave(s.now)
			s.markParticipant(p)
			return nil
		}
		return s.depart(p, events.EventTypeUserLeft)
	})
}

// Heartbeat marks the participant as present for AFK detection.
func (c *Coordinator) Heartbeat(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "heartbeat", func(s *roomState) error {
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		p.Touch(s.now)
		s.markParticipant(p)
		return nil
	})
}

// JoinWaitlist queues the caller for leadership. If nobody leads the room
// the head of the waitlist is promoted straight away.
func (c *Coordinator) JoinWaitlist(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "join_waitlist", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		if !s.settings.WaitlistEnabled {
			return apperr.ErrWaitlistDisabled
		}
		if p.IsInWaitlist {
			return apperr.ErrInvalidStateTransition.Withf("already in the waitlist")
		}
		if s.room.IsLeader(userID) {
			return apperr.ErrInvalidStateTransition.Withf("the leader cannot join the waitlist")
		}
		if limit := s.settings.MaxWaitlistSize; limit > 0 && len(s.waitlist()) >= limit {
			return apperr.ErrWaitlistFull
		}

		p.JoinWaitlist(s.nextWaitlistPosition())
		p.Touch(s.now)
		s.markParticipant(p)

		if !s.electLeader() {
			s.emit(events.EventTypeWaitlistUpdated, userID, events.WaitlistPayload{UserIDs: s.waitlistUserIDs()})
		}
		return nil
	})
}

func (c *Coordinator) LeaveWaitlist(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "leave_waitlist", func(s *roomState) error {
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		if !p.IsInWaitlist {
			return apperr.ErrInvalidStateTransition.Withf("not in the waitlist")
		}
		p.LeaveWaitlist()
		s.markParticipant(p)
		s.emit(events.EventTypeWaitlistUpdated, userID, events.WaitlistPayload{UserIDs: s.waitlistUserIDs()})
		return nil
	})
}

// StepDown gives up leadership; the head of the waitlist takes over.
func (c *Coordinator) StepDown(ctx context.Context, roomID, userID uuid.UUID) error {
	return c.do(ctx, roomID, "step_down", func(s *roomState) error {
		if _, err := s.member(userID); err != nil {
			return err
		}
		if !s.room.IsLeader(userID) {
			return apperr.ErrInvalidStateTransition.Withf("not the current leader")
		}
		previous := s.dropLeader()
		if !s.electLeader() {
			s.emit(events.EventTypeLeaderChanged, userID, events.LeaderChangedPayload{PreviousLeaderID: previous.String()})
		}
		return nil
	})
}

// PromoteToLeader lets a moderator hand leadership to any active participant.
func (c *Coordinator) PromoteToLeader(ctx context.Context, roomID, actorID, targetID uuid.UUID) error {
	return c.do(ctx, roomID, "promote", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		mod, err := s.member(actorID)
		if err != nil {
			return err
		}
		if !s.canModerate(mod) {
			return apperr.ErrNotPermitted.Withf("only moderators can promote a leader")
		}
		target, err := s.member(targetID)
		if err != nil {
			return err
		}
		if s.room.IsLeader(targetID) {
			return nil
		}
		s.setLeader(target)
		return nil
	})
}

// SetRole changes a participant's role. Leadership goes through
// PromoteToLeader; demoting the current leader elects a new one.
func (c *Coordinator) SetRole(ctx context.Context, roomID, actorID, targetID uuid.UUID, role models.ParticipantRole) error {
	return c.do(ctx, roomID, "set_role", func(s *roomState) error {
		if !role.Valid() {
			return apperr.ErrInvalidInput.Withf("unknown role %q", role)
		}
		if role == models.RoleLeader {
			return apperr.ErrInvalidInput.Withf("use promote to make someone leader")
		}
		mod, err := s.member(actorID)
		if err != nil {
			return err
		}
		if !s.canModerate(mod) {
			return apperr.ErrNotPermitted.Withf("only moderators can change roles")
		}
		target, err := s.member(targetID)
		if err != nil {
			return err
		}
		if s.room.IsCreator(targetID) && !s.room.IsCreator(actorID) {
			return apperr.ErrNotPermitted.Withf("the room creator's role cannot be changed")
		}

		wasLeader := s.room.IsLeader(targetID)
		target.Role = role
		if role == models.RoleListener {
			target.LeaveWaitlist()
		}
		s.markParticipant(target)
		s.emit(events.EventTypeRoleChanged, targetID, participantPayload(target))

		if wasLeader {
			s.room.CurrentLeaderID = nil
			s.markRoom()
			s.emit(events.EventTypeLeaderChanged, targetID, events.LeaderChangedPayload{PreviousLeaderID: targetID.String()})
			s.electLeader()
		}
		return nil
	})
}

// SweepAfk removes participants idle past the room's AFK timeout and returns
// their user ids.
func (c *Coordinator) SweepAfk(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	var removed []uuid.UUID
	err := c.doSystem(ctx, roomID, "sweep_afk", func(s *roomState) error {
		removed = nil
		timeout := s.settings.AfkTimeoutMinutes
		for _, p := range s.activeParticipants() {
			if !p.IsActive || !p.IsAfk(timeout, s.now) {
				continue
			}
			if err := s.depart(p, events.EventTypeUserAfk); err != nil {
				return err
			}
			removed = append(removed, p.UserID)
		}
		return nil
	})
	return removed, err
}

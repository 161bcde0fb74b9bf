package room

import (
	"sort"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

func (s *roomState) activeParticipants() []*models.Participant {
	active := make([]*models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	return active
}

func (s *roomState) activeCount() int {
	n := 0
	for _, p := range s.participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

// member returns the caller's participant row if they are active in the room.
func (s *roomState) member(userID uuid.UUID) (*models.Participant, error) {
	p, ok := s.participants[userID]
	if !ok || !p.IsActive {
		return nil, apperr.ErrNotParticipant
	}
	return p, nil
}

// canControlPlayback also lets the room creator drive playback whatever
// their current role.
func (s *roomState) canControlPlayback(p *models.Participant) bool {
	return p.CanControlPlayback() || (p.IsActive && s.room.IsCreator(p.UserID))
}

func (s *roomState) canModerate(p *models.Participant) bool {
	return p.CanModerateRoom() || (p.IsActive && s.room.IsCreator(p.UserID))
}

// moderator checks that userID may manage the room. The creator may do so
// even when not present, which is how inactive rooms and templates are set up.
func (s *roomState) moderator(userID uuid.UUID, action string) error {
	if s.room.IsCreator(userID) {
		return nil
	}
	p, ok := s.participants[userID]
	if !ok || !s.canModerate(p) {
		return apperr.ErrNotPermitted.Withf("only moderators can %s", action)
	}
	return nil
}

// waitlist returns waitlisted active participants in position order.
func (s *roomState) waitlist() []*models.Participant {
	list := make([]*models.Participant, 0)
	for _, p := range s.participants {
		if p.IsActive && p.IsInWaitlist && p.WaitlistPosition != nil {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return *list[i].WaitlistPosition < *list[j].WaitlistPosition
	})
	return list
}

func (s *roomState) nextWaitlistPosition() int {
	next := 1
	for _, p := range s.waitlist() {
		if *p.WaitlistPosition >= next {
			next = *p.WaitlistPosition + 1
		}
	}
	return next
}

func (s *roomState) waitlistUserIDs() []string {
	list := s.waitlist()
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.UserID.String()
	}
	return ids
}

func (s *roomState) leader() *models.Participant {
	if s.room.CurrentLeaderID == nil {
		return nil
	}
	p, ok := s.participants[*s.room.CurrentLeaderID]
	if !ok {
		return nil
	}
	return p
}

// dropLeader clears the room's leader. A participant holding the LEADER role
// falls back to DJ.
func (s *roomState) dropLeader() *uuid.UUID {
	previous := s.room.CurrentLeaderID
	if p := s.leader(); p != nil && p.Role == models.RoleLeader {
		p.Role = models.RoleDJ
		s.markParticipant(p)
	}
	s.room.CurrentLeaderID = nil
	s.markRoom()
	return previous
}

// setLeader hands leadership to p, demoting whoever held it.
func (s *roomState) setLeader(p *models.Participant) {
	var previous *uuid.UUID
	if s.room.CurrentLeaderID != nil {
		if *s.room.CurrentLeaderID == p.UserID {
			return
		}
		previous = s.dropLeader()
	}

	if p.Role != models.RoleModerator {
		p.PromoteToLeader()
	} else {
		p.LeaveWaitlist()
	}
	s.markParticipant(p)
	id := p.UserID
	s.room.CurrentLeaderID = &id
	s.markRoom()

	payload := events.LeaderChangedPayload{LeaderID: id.String()}
	if previous != nil {
		payload.PreviousLeaderID = previous.String()
	}
	s.emit(events.EventTypeLeaderChanged, id, payload)
	s.emit(events.EventTypeWaitlistUpdated, uuid.Nil, events.WaitlistPayload{UserIDs: s.waitlistUserIDs()})
}

// electLeader promotes the head of the waitlist when the room has no active
// leader. It reports whether leadership changed.
func (s *roomState) electLeader() bool {
	if l := s.leader(); l != nil && l.IsActive {
		return false
	}
	hadLeader := s.room.CurrentLeaderID != nil
	if hadLeader {
		previous := s.dropLeader()
		list := s.waitlist()
		if len(list) == 0 {
			s.emit(events.EventTypeLeaderChanged, uuid.Nil, events.LeaderChangedPayload{PreviousLeaderID: previous.String()})
			return true
		}
		s.setLeader(list[0])
		return true
	}

	list := s.waitlist()
	if len(list) == 0 {
		return false
	}
	s.setLeader(list[0])
	return true
}

// depart takes a participant out of the room and repairs leadership and
// the skip vote that the smaller audience may now carry.
func (s *roomState) depart(p *models.Participant, eventType events.EventType) error {
	wasWaiting := p.IsInWaitlist
	p.Leave(s.now)
	if p.Role == models.RoleLeader {
		p.Role = models.RoleDJ
	}
	s.markParticipant(p)
	s.emit(eventType, p.UserID, participantPayload(p))

	if s.room.IsLeader(p.UserID) {
		s.electLeader()
	} else if wasWaiting {
		s.emit(events.EventTypeWaitlistUpdated, uuid.Nil, events.WaitlistPayload{UserIDs: s.waitlistUserIDs()})
	}

	_, err := s.evaluateSkip()
	return err
}

func participantPayload(p *models.Participant) events.ParticipantPayload {
	return events.ParticipantPayload{
		UserID:           p.UserID.String(),
		Role:             string(p.Role),
		IsInWaitlist:     p.IsInWaitlist,
		WaitlistPosition: p.WaitlistPosition,
	}
}

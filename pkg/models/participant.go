package models

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantRole string

const (
	RoleListener  ParticipantRole = "LISTENER"
	RoleDJ        ParticipantRole = "DJ"
	RoleLeader    ParticipantRole = "LEADER"
	RoleModerator ParticipantRole = "MODERATOR"
)

type roleCapabilities struct {
	controlPlayback bool
	addToQueue      bool
	moderate        bool
}

var capabilities = map[ParticipantRole]roleCapabilities{
	RoleListener:  {},
	RoleDJ:        {addToQueue: true},
	RoleLeader:    {controlPlayback: true, addToQueue: true},
	RoleModerator: {controlPlayback: true, addToQueue: true, moderate: true},
}

func (r ParticipantRole) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

func (r ParticipantRole) CanControlPlayback() bool { return capabilities[r].controlPlayback }
func (r ParticipantRole) CanAddToQueue() bool      { return capabilities[r].addToQueue }
func (r ParticipantRole) CanModerateRoom() bool    { return capabilities[r].moderate }

type Participant struct {
	ID               uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID           uuid.UUID       `json:"room_id" gorm:"type:char(36);not null;uniqueIndex:idx_participant_room_user"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_participant_room_user"`
	Role             ParticipantRole `json:"role" gorm:"size:20;not null"`
	IsActive         bool            `json:"is_active"`
	IsInWaitlist     bool            `json:"is_in_waitlist"`
	WaitlistPosition *int            `json:"waitlist_position"`
	JoinedAt         time.Time       `json:"joined_at"`
	LastActiveAt     *time.Time      `json:"last_active_at"`
	LeftAt           *time.Time      `json:"left_at"`
}

func (Participant) TableName() string { return "worship_room_participants" }

func NewParticipant(roomID, userID uuid.UUID, role ParticipantRole, now time.Time) *Participant {
	active := now
	return &Participant{
		ID:           uuid.New(),
		RoomID:       roomID,
		UserID:       userID,
		Role:         role,
		IsActive:     true,
		JoinedAt:     now,
		LastActiveAt: &active,
	}
}

func (p *Participant) CanControlPlayback() bool { return p.IsActive && p.Role.CanControlPlayback() }
func (p *Participant) CanAddToQueue() bool      { return p.IsActive && p.Role.CanAddToQueue() }
func (p *Participant) CanModerateRoom() bool    { return p.IsActive && p.Role.CanModerateRoom() }

// JoinWaitlist puts the participant in the waitlist at position. Positions
// are computed by the caller.
func (p *Participant) JoinWaitlist(position int) {
	p.IsInWaitlist = true
	p.WaitlistPosition = &position
}

func (p *Participant) LeaveWaitlist() {
	p.IsInWaitlist = false
	p.WaitlistPosition = nil
}

// PromoteToLeader makes the participant the leader and takes them out of the
// waitlist. The room's current leader must be updated separately.
func (p *Participant) PromoteToLeader() {
	p.Role = RoleLeader
	p.LeaveWaitlist()
}

// Leave marks the participant as gone. Calling it again only re-stamps LeftAt.
func (p *Participant) Leave(now time.Time) {
	p.IsActive = false
	left := now
	p.LeftAt = &left
	p.LeaveWaitlist()
}

// Rejoin reactivates a participant row that left earlier.
func (p *Participant) Rejoin(now time.Time) {
	p.IsActive = true
	p.LeftAt = nil
	p.JoinedAt = now
	p.Touch(now)
}

func (p *Participant) Touch(now time.Time) {
	active := now
	p.LastActiveAt = &active
}

// IsAfk reports whether the participant has been idle for longer than
// timeoutMinutes. A participant that was never active is not AFK.
func (p *Participant) IsAfk(timeoutMinutes int, now time.Time) bool {
	if p.LastActiveAt == nil || timeoutMinutes <= 0 {
		return false
	}
	return p.LastActiveAt.Before(now.Add(-time.Duration(timeoutMinutes) * time.Minute))
}

package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worship-room-service/pkg/models"
)

func TestParticipant_Waitlist(t *testing.T) {
	now := time.Now()

	t.Run("join and leave waitlist", func(t *testing.T) {
		p := models.NewParticipant(uuid.New(), uuid.New(), models.RoleDJ, now)
		p.JoinWaitlist(3)
		assert.True(t, p.IsInWaitlist)
		require.NotNil(t, p.WaitlistPosition)
		assert.Equal(t, 3, *p.WaitlistPosition)

		p.LeaveWaitlist()
		assert.False(t, p.IsInWaitlist)
		assert.Nil(t, p.WaitlistPosition)
	})

	t.Run("promote to leader clears waitlist", func(t *testing.T) {
		p := models.NewParticipant(uuid.New(), uuid.New(), models.RoleListener, now)
		p.JoinWaitlist(1)
		p.PromoteToLeader()

		assert.Equal(t, models.RoleLeader, p.Role)
		assert.False(t, p.IsInWaitlist)
		assert.Nil(t, p.WaitlistPosition)
	})
}

func TestParticipant_Leave(t *testing.T) {
	now := time.Now()
	p := models.NewParticipant(uuid.New(), uuid.New(), models.RoleDJ, now)
	p.JoinWaitlist(2)

	p.Leave(now)
	first := *p
	assert.False(t, p.IsActive)
	assert.False(t, p.IsInWaitlist)
	assert.Nil(t, p.WaitlistPosition)
	require.NotNil(t, p.LeftAt)

	assert.NotPanics(t, func() { p.Leave(now.Add(time.Minute)) })
	assert.Equal(t, first.IsActive, p.IsActive)
	assert.Equal(t, first.IsInWaitlist, p.IsInWaitlist)
	assert.Equal(t, first.WaitlistPosition, p.WaitlistPosition)
	assert.Equal(t, now.Add(time.Minute), *p.LeftAt)

	p.Rejoin(now.Add(time.Hour))
	assert.True(t, p.IsActive)
	assert.Nil(t, p.LeftAt)
}

func TestParticipant_IsAfk(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := models.NewParticipant(uuid.New(), uuid.New(), models.RoleListener, now.Add(-20*time.Minute))

	assert.True(t, p.IsAfk(15, now))
	assert.False(t, p.IsAfk(30, now))
	assert.False(t, p.IsAfk(0, now))

	p.LastActiveAt = nil
	assert.False(t, p.IsAfk(15, now), "never active")
}

func TestParticipant_Capabilities(t *testing.T) {
	tests := []struct {
		role     models.ParticipantRole
		control  bool
		addQueue bool
		moderate bool
	}{
		{models.RoleListener, false, false, false},
		{models.RoleDJ, false, true, false},
		{models.RoleLeader, true, true, false},
		{models.RoleModerator, true, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := models.NewParticipant(uuid.New(), uuid.New(), tt.role, time.Now())
			assert.Equal(t, tt.control, p.CanControlPlayback())
			assert.Equal(t, tt.addQueue, p.CanAddToQueue())
			assert.Equal(t, tt.moderate, p.CanModerateRoom())

			p.Leave(time.Now())
			assert.False(t, p.CanControlPlayback())
			assert.False(t, p.CanAddToQueue())
			assert.False(t, p.CanModerateRoom())
		})
	}

	assert.False(t, models.ParticipantRole("OWNER").Valid())
}

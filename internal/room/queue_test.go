package room

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/models"
)

func TestEnqueue_AutoStartsStoppedRoom(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(f.creator, "a")
	second := f.enqueue(f.creator, "b")

	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, first.ID, snap.Current.ID)
	assert.Equal(t, models.PlaybackPlaying, snap.Room.PlaybackStatus)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, second.ID, snap.Queue[0].ID)
	assert.Greater(t, second.Position, first.Position)
}

func TestEnqueue_NoAutoStartWithoutAutoAdvance(t *testing.T) {
	f := newFixture(t)
	f.settings(SettingsUpdate{AutoAdvance: boolPtr(false)})
	f.enqueue(f.creator, "a")

	snap := f.snapshot()
	assert.Nil(t, snap.Current)
	assert.Len(t, snap.Queue, 1)

	require.NoError(t, f.coord.Play(f.ctx, f.roomID, f.creator))
	assert.NotNil(t, f.snapshot().Current)
}

func TestEnqueue_RuleOrder(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	listener := f.join()
	f.settings(SettingsUpdate{
		MaxQueueSize:           intPtr(3),
		MaxSongsPerUser:        intPtr(2),
		MinSongDurationSeconds: intPtr(60),
		MaxSongDurationSeconds: intPtr(600),
		BannedVideoIDs:         []string{"banned"},
	})

	tests := []struct {
		name string
		user uuid.UUID
		req  EnqueueRequest
		want error
	}{
		{"listener cannot add", listener, EnqueueRequest{VideoID: "banned", DurationSeconds: 5}, apperr.ErrNotPermitted},
		{"ban before duration", dj, EnqueueRequest{VideoID: "banned", DurationSeconds: 5}, apperr.ErrVideoBanned},
		{"too short", dj, EnqueueRequest{VideoID: "x", DurationSeconds: 5}, apperr.ErrDurationOutOfBounds},
		{"too long", dj, EnqueueRequest{VideoID: "x", DurationSeconds: 601}, apperr.ErrDurationOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Enqueue(f.ctx, f.roomID, tt.user, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// dj: one playing, one waiting. creator: two waiting.
	f.enqueue(dj, "d1")
	f.enqueue(dj, "d2")
	_, err := f.coord.Enqueue(f.ctx, f.roomID, dj, EnqueueRequest{VideoID: "d3"})
	assert.ErrorIs(t, err, apperr.ErrUserSongLimit)

	f.enqueue(f.creator, "c1")
	_, err = f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "d1"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateSong)

	f.enqueue(f.creator, "c2")
	// Three waiting: the queue cap wins over the per-user cap.
	_, err = f.coord.Enqueue(f.ctx, f.roomID, dj, EnqueueRequest{VideoID: "d3"})
	assert.ErrorIs(t, err, apperr.ErrQueueFull)
}

func TestEnqueue_Cooldown(t *testing.T) {
	f := newFixture(t)
	f.settings(SettingsUpdate{SongCooldownHours: intPtr(1)})
	first := f.enqueue(f.creator, "hymn")
	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, first.ID))

	_, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "hymn"})
	assert.ErrorIs(t, err, apperr.ErrSongCooldownActive)

	f.clock.Advance(61 * time.Minute)
	f.enqueue(f.creator, "hymn")
}

func TestEnqueue_DuplicatesAllowed(t *testing.T) {
	f := newFixture(t)
	f.settings(SettingsUpdate{AllowDuplicates: boolPtr(true)})
	f.enqueue(f.creator, "a")
	f.enqueue(f.creator, "a")
	assert.Len(t, f.snapshot().Queue, 1)
}

func TestEnqueue_InvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "a", DurationSeconds: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.coord.Enqueue(f.ctx, f.roomID, uuid.New(), EnqueueRequest{VideoID: "a"})
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
}

func TestMoveEntry(t *testing.T) {
	f := newFixture(t)
	f.settings(SettingsUpdate{MaxSongsPerUser: intPtr(10)})
	f.enqueue(f.creator, "playing")
	a := f.enqueue(f.creator, "a")
	b := f.enqueue(f.creator, "b")
	c := f.enqueue(f.creator, "c")

	require.NoError(t, f.coord.MoveEntry(f.ctx, f.roomID, f.creator, c.ID, 0))
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID}, queueIDs(f.snapshot()))

	require.NoError(t, f.coord.MoveEntry(f.ctx, f.roomID, f.creator, c.ID, 99))
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, queueIDs(f.snapshot()))

	// Repeated moves into the same slot eventually need a renumber.
	for i := 0; i < 20; i++ {
		target := c
		if i%2 == 1 {
			target = b
		}
		require.NoError(t, f.coord.MoveEntry(f.ctx, f.roomID, f.creator, target.ID, 1))
	}
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, queueIDs(f.snapshot()))

	// The order survives a reload from the store.
	f.coord.Evict(f.roomID)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, queueIDs(f.snapshot()))
}

func TestMoveEntry_Rejections(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	playing := f.enqueue(f.creator, "playing")
	waiting := f.enqueue(dj, "a")

	err := f.coord.MoveEntry(f.ctx, f.roomID, dj, waiting.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)

	err = f.coord.MoveEntry(f.ctx, f.roomID, f.creator, playing.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	err = f.coord.MoveEntry(f.ctx, f.roomID, f.creator, uuid.New(), 0)
	assert.ErrorIs(t, err, apperr.ErrEntryNotFound)
}

func TestRemoveEntry(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	other := f.joinAs(models.RoleDJ)
	playing := f.enqueue(f.creator, "playing")
	mine := f.enqueue(dj, "mine")
	theirs := f.enqueue(other, "theirs")

	err := f.coord.RemoveEntry(f.ctx, f.roomID, dj, theirs.ID)
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)

	require.NoError(t, f.coord.RemoveEntry(f.ctx, f.roomID, dj, mine.ID))
	assert.Equal(t, []uuid.UUID{theirs.ID}, queueIDs(f.snapshot()))

	// Removing the playing entry skips it into history.
	require.NoError(t, f.coord.RemoveEntry(f.ctx, f.roomID, f.creator, playing.ID))
	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, theirs.ID, snap.Current.ID)
	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, "removed", history[0].SkipReason)
}

func TestEditEntry(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	f.enqueue(f.creator, "playing")
	entry := f.enqueue(dj, "a")

	title := "Amazing Grace"
	edited, err := f.coord.EditEntry(f.ctx, f.roomID, dj, entry.ID, EntryUpdate{VideoTitle: &title})
	require.NoError(t, err)
	assert.Equal(t, title, edited.VideoTitle)

	_, err = f.coord.EditEntry(f.ctx, f.roomID, f.creator, entry.ID, EntryUpdate{VideoTitle: &title})
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)
}

func TestApproval(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	f.settings(SettingsUpdate{RequireApproval: boolPtr(true)})

	held := f.enqueue(dj, "a")
	assert.False(t, held.IsApproved)
	snap := f.snapshot()
	assert.Nil(t, snap.Current, "unapproved entries never start")
	assert.Len(t, snap.Queue, 1)

	err := f.coord.ApproveEntry(f.ctx, f.roomID, dj, held.ID)
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)

	require.NoError(t, f.coord.ApproveEntry(f.ctx, f.roomID, f.creator, held.ID))
	snap = f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, held.ID, snap.Current.ID)

	// Moderators skip the approval step.
	own := f.enqueue(f.creator, "b")
	assert.True(t, own.IsApproved)
}

func TestApproval_UnapprovedEntriesArePassedOver(t *testing.T) {
	f := newFixture(t)
	dj := f.joinAs(models.RoleDJ)
	playing := f.enqueue(f.creator, "playing")
	f.settings(SettingsUpdate{RequireApproval: boolPtr(true)})

	f.enqueue(dj, "held")
	approved := f.enqueue(f.creator, "approved")

	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, playing.ID))
	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, approved.ID, snap.Current.ID)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "held", snap.Queue[0].VideoID)
}

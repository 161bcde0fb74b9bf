package room

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

func TestPauseResumePosition(t *testing.T) {
	f := newFixture(t)
	f.enqueue(f.creator, "a")

	f.clock.Advance(30 * time.Second)
	pos, _, err := f.coord.Position(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.InDelta(t, 30, pos, 0.001)

	require.NoError(t, f.coord.Pause(f.ctx, f.roomID, f.creator, nil))
	err = f.coord.Pause(f.ctx, f.roomID, f.creator, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	f.clock.Advance(10 * time.Second)
	pos, _, err = f.coord.Position(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.InDelta(t, 30, pos, 0.001, "paused position does not move")

	require.NoError(t, f.coord.Resume(f.ctx, f.roomID, f.creator))
	err = f.coord.Resume(f.ctx, f.roomID, f.creator)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	f.clock.Advance(5 * time.Second)
	pos, _, err = f.coord.Position(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.InDelta(t, 35, pos, 0.001)

	require.NoError(t, f.coord.Seek(f.ctx, f.roomID, f.creator, 100))
	f.clock.Advance(2 * time.Second)
	pos, _, err = f.coord.Position(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.InDelta(t, 102, pos, 0.001)

	assert.Subset(t, f.pub.types(), []events.EventType{
		events.EventTypePlaybackPaused,
		events.EventTypePlaybackResumed,
		events.EventTypePlaybackSeeked,
	})
}

func TestPause_ClientPosition(t *testing.T) {
	f := newFixture(t)
	f.enqueue(f.creator, "a")
	require.NoError(t, f.coord.Pause(f.ctx, f.roomID, f.creator, floatPtr(12.5)))

	pos, _, err := f.coord.Position(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.Equal(t, 12.5, pos)
}

func TestSeek_PastEnd(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "a", DurationSeconds: 300})
	require.NoError(t, err)

	err = f.coord.Seek(f.ctx, f.roomID, f.creator, 301)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.NoError(t, f.coord.Seek(f.ctx, f.roomID, f.creator, 299))
}

func TestPlayback_RequiresController(t *testing.T) {
	f := newFixture(t)
	listener := f.join()
	dj := f.joinAs(models.RoleDJ)
	f.enqueue(f.creator, "a")

	for _, user := range []uuid.UUID{listener, dj} {
		assert.ErrorIs(t, f.coord.Pause(f.ctx, f.roomID, user, nil), apperr.ErrNotPermitted)
		assert.ErrorIs(t, f.coord.Skip(f.ctx, f.roomID, user), apperr.ErrNotPermitted)
		assert.ErrorIs(t, f.coord.Stop(f.ctx, f.roomID, user), apperr.ErrNotPermitted)
	}
}

func TestStopAndPlay(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(f.creator, "a")
	second := f.enqueue(f.creator, "b")

	err := f.coord.Play(f.ctx, f.roomID, f.creator)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "already playing")

	require.NoError(t, f.coord.Stop(f.ctx, f.roomID, f.creator))
	snap := f.snapshot()
	assert.Nil(t, snap.Current)
	assert.Nil(t, snap.Room.CurrentVideoID)
	assert.Equal(t, models.PlaybackStopped, snap.Room.PlaybackStatus)
	assert.Equal(t, []uuid.UUID{second.ID}, queueIDs(snap))

	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].QueueEntryID)
	assert.Equal(t, models.OutcomeSkipped, history[0].Outcome)
	assert.Equal(t, "stopped", history[0].SkipReason)

	// Stopping a stopped room is harmless.
	require.NoError(t, f.coord.Stop(f.ctx, f.roomID, f.creator))

	require.NoError(t, f.coord.Play(f.ctx, f.roomID, f.creator))
	snap = f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, second.ID, snap.Current.ID)

	require.NoError(t, f.coord.Skip(f.ctx, f.roomID, f.creator))
	err = f.coord.Play(f.ctx, f.roomID, f.creator)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "nothing to play")
	err = f.coord.Skip(f.ctx, f.roomID, f.creator)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "nothing playing")
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(f.creator, "a")
	second := f.enqueue(f.creator, "b")

	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, first.ID))
	err := f.coord.Complete(f.ctx, f.roomID, f.creator, first.ID)
	assert.ErrorIs(t, err, apperr.ErrConcurrentModification, "stale completion")

	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, second.ID, snap.Current.ID)

	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, models.OutcomePlayed, history[0].Outcome)
	assert.Empty(t, history[0].SkipReason)
}

func TestComplete_WithoutAutoAdvanceStops(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(f.creator, "a")
	f.enqueue(f.creator, "b")
	f.settings(SettingsUpdate{AutoAdvance: boolPtr(false)})

	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, first.ID))
	snap := f.snapshot()
	assert.Nil(t, snap.Current)
	assert.Equal(t, models.PlaybackStopped, snap.Room.PlaybackStatus)
	assert.Len(t, snap.Queue, 1)
}

func TestPlaylistFallback(t *testing.T) {
	db := database.NewMemoryDB()
	f := newFixtureOn(t, db)
	playlist := &models.Playlist{
		ID:      uuid.New(),
		Name:    "Opening set",
		OwnerID: f.creator,
		Items: []models.PlaylistItem{
			{ID: uuid.New(), VideoID: "banned", Position: 1},
			{ID: uuid.New(), VideoID: "p1", Position: 2},
			{ID: uuid.New(), VideoID: "p2", Position: 3},
		},
	}
	require.NoError(t, db.CreatePlaylist(f.ctx, playlist))
	f.settings(SettingsUpdate{BannedVideoIDs: []string{"banned"}})

	require.NoError(t, f.coord.AttachPlaylist(f.ctx, f.roomID, f.creator, playlist.ID))
	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "p1", snap.Current.VideoID)

	// Queued songs come before the playlist.
	queued := f.enqueue(f.creator, "q")
	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, snap.Current.ID))
	snap = f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, queued.ID, snap.Current.ID)

	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, queued.ID))
	snap = f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "p2", snap.Current.VideoID)
	assert.Equal(t, 3, snap.Room.PlaylistPosition)

	// The playlist position survives a reload.
	f.coord.Evict(f.roomID)
	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, snap.Current.ID))
	snap = f.snapshot()
	assert.Nil(t, snap.Current)
	assert.Equal(t, models.PlaybackStopped, snap.Room.PlaybackStatus)
}

func TestAttachPlaylist_Unknown(t *testing.T) {
	f := newFixture(t)
	err := f.coord.AttachPlaylist(f.ctx, f.roomID, f.creator, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrPlaylistNotFound)
}

func TestDetachPlaylist(t *testing.T) {
	db := database.NewMemoryDB()
	f := newFixtureOn(t, db)
	playlist := &models.Playlist{
		ID:      uuid.New(),
		Name:    "Closing set",
		OwnerID: f.creator,
		Items: []models.PlaylistItem{
			{ID: uuid.New(), VideoID: "p1", Position: 1},
			{ID: uuid.New(), VideoID: "p2", Position: 2},
		},
	}
	require.NoError(t, db.CreatePlaylist(f.ctx, playlist))
	require.NoError(t, f.coord.AttachPlaylist(f.ctx, f.roomID, f.creator, playlist.ID))
	require.NoError(t, f.coord.DetachPlaylist(f.ctx, f.roomID, f.creator))

	current := f.snapshot().Current
	require.NotNil(t, current)
	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, current.ID))
	assert.Nil(t, f.snapshot().Current, "detached playlist is not used")
}

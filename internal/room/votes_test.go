package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

func TestSkipVote_ReorderedQueueAdvances(t *testing.T) {
	f := newFixture(t)
	alice := f.join()
	bob := f.join()
	f.join()

	a := f.enqueue(f.creator, "video-a")
	f.enqueue(f.creator, "video-b")
	c := f.enqueue(f.creator, "video-c")

	require.NoError(t, f.coord.MoveEntry(f.ctx, f.roomID, f.creator, c.ID, 0))

	res, err := f.coord.CastVote(f.ctx, f.roomID, alice, a.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 4, res.Active)

	res, err = f.coord.CastVote(f.ctx, f.roomID, bob, a.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 2, res.Tally.Skips)

	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, c.ID, snap.Current.ID)
	assert.Equal(t, "video-c", *snap.Room.CurrentVideoID)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "video-b", snap.Queue[0].VideoID)

	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, a.ID, history[0].QueueEntryID)
	assert.Equal(t, models.OutcomeSkipped, history[0].Outcome)
	assert.Equal(t, "vote", history[0].SkipReason)
	assert.Equal(t, 2, history[0].Skips)
	assert.Equal(t, 4, history[0].ParticipantCount)

	assert.Contains(t, f.pub.types(), events.EventTypeSongSkipped)
	assert.Equal(t, 1, f.playingInStore())
}

func TestCastVote_Uniqueness(t *testing.T) {
	f := newFixture(t)
	user := f.join()
	f.join()
	f.join()
	playing := f.enqueue(f.creator, "a")

	_, err := f.coord.CastVote(f.ctx, f.roomID, user, playing.ID, models.VoteUpvote)
	require.NoError(t, err)
	_, err = f.coord.CastVote(f.ctx, f.roomID, user, playing.ID, models.VoteUpvote)
	assert.ErrorIs(t, err, apperr.ErrAlreadyVoted)

	// A different type on the same entry is a separate vote.
	res, err := f.coord.CastVote(f.ctx, f.roomID, user, playing.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.Equal(t, models.VoteTally{Upvotes: 1, Skips: 1}, res.Tally)
	assert.False(t, res.Skipped)
}

func TestCastVote_SkipOnlyAppliesToPlayingEntry(t *testing.T) {
	f := newFixture(t)
	user := f.join()
	f.enqueue(f.creator, "a")
	waiting := f.enqueue(f.creator, "b")

	_, err := f.coord.CastVote(f.ctx, f.roomID, user, waiting.ID, models.VoteSkip)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	res, err := f.coord.CastVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tally.Upvotes)
}

func TestCastVote_Rejections(t *testing.T) {
	f := newFixture(t)
	playing := f.enqueue(f.creator, "a")
	outsider := f.join()
	require.NoError(t, f.coord.Leave(f.ctx, f.roomID, outsider))

	_, err := f.coord.CastVote(f.ctx, f.roomID, outsider, playing.ID, models.VoteUpvote)
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	_, err = f.coord.CastVote(f.ctx, f.roomID, f.creator, playing.ID, models.VoteType("MEH"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRetractVote(t *testing.T) {
	f := newFixture(t)
	user := f.join()
	f.enqueue(f.creator, "a")
	waiting := f.enqueue(f.creator, "b")

	_, err := f.coord.CastVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote)
	require.NoError(t, err)
	require.NoError(t, f.coord.RetractVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote))

	err = f.coord.RetractVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote)
	assert.ErrorIs(t, err, apperr.ErrVoteNotFound)

	// The retracted vote is gone from the store too.
	f.coord.Evict(f.roomID)
	queue, err := f.coord.Queue(f.ctx, f.roomID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Zero(t, queue[0].Upvotes)

	_, err = f.coord.CastVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote)
	assert.NoError(t, err)
}

func TestDeparture_ShrinksDenominator(t *testing.T) {
	f := newFixture(t)
	voter := f.join()
	f.join()
	leaver := f.join()
	f.join()
	playing := f.enqueue(f.creator, "a")
	next := f.enqueue(f.creator, "b")

	// 2 of 5 is below half.
	res, err := f.coord.CastVote(f.ctx, f.roomID, voter, playing.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	res, err = f.coord.CastVote(f.ctx, f.roomID, leaver, playing.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	// The leaver's vote still counts against four listeners.
	require.NoError(t, f.coord.Leave(f.ctx, f.roomID, leaver))

	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, next.ID, snap.Current.ID)
	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].Skips)
	assert.Equal(t, 4, history[0].ParticipantCount)
}

func TestUpdateSettings_LowerThresholdSkips(t *testing.T) {
	f := newFixture(t)
	voter := f.join()
	f.join()
	f.join()
	playing := f.enqueue(f.creator, "a")

	res, err := f.coord.CastVote(f.ctx, f.roomID, voter, playing.ID, models.VoteSkip)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	f.settings(SettingsUpdate{SkipThreshold: floatPtr(0.25)})

	snap := f.snapshot()
	assert.Nil(t, snap.Current)
	assert.Equal(t, models.PlaybackStopped, snap.Room.PlaybackStatus)
	assert.Equal(t, 0.25, snap.Room.SkipThreshold)
	require.Len(t, f.history(), 1)
	assert.Equal(t, "vote", f.history()[0].SkipReason)
}

package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails Apply while fail is set.
type failingStore struct {
	*database.MemoryDB
	fail atomic.Bool
}

func (s *failingStore) Apply(ctx context.Context, cs *database.Changeset) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.MemoryDB.Apply(ctx, cs)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   Store
	coord   *Coordinator
	pub     *recordingPublisher
	clock   *fakeClock
	roomID  uuid.UUID
	creator uuid.UUID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureOn(t, database.NewMemoryDB(), opts...)
}

func newFixtureOn(t *testing.T, store Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		pub:     &recordingPublisher{},
		clock:   &fakeClock{now: time.Now()},
		creator: uuid.New(),
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.coord = NewCoordinator(store, f.pub, opts...)
	t.Cleanup(f.coord.Shutdown)

	room, err := f.coord.CreateRoom(f.ctx, f.creator, CreateRoomRequest{Name: "Sunday worship"})
	require.NoError(t, err)
	f.roomID = room.ID

	_, err = f.coord.Join(f.ctx, f.roomID, f.creator)
	require.NoError(t, err)
	return f
}

func (f *fixture) join() uuid.UUID {
	f.t.Helper()
	user := uuid.New()
	_, err := f.coord.Join(f.ctx, f.roomID, user)
	require.NoError(f.t, err)
	return user
}

func (f *fixture) joinAs(role models.ParticipantRole) uuid.UUID {
	f.t.Helper()
	user := f.join()
	require.NoError(f.t, f.coord.SetRole(f.ctx, f.roomID, f.creator, user, role))
	return user
}

func (f *fixture) enqueue(user uuid.UUID, videoID string) *models.QueueEntry {
	f.t.Helper()
	entry, err := f.coord.Enqueue(f.ctx, f.roomID, user, EnqueueRequest{VideoID: videoID, VideoTitle: videoID})
	require.NoError(f.t, err)
	return entry
}

func (f *fixture) snapshot() *Snapshot {
	f.t.Helper()
	snap, err := f.coord.Snapshot(f.ctx, f.roomID)
	require.NoError(f.t, err)
	return snap
}

func (f *fixture) settings(update SettingsUpdate) {
	f.t.Helper()
	_, err := f.coord.UpdateSettings(f.ctx, f.roomID, f.creator, update)
	require.NoError(f.t, err)
}

func (f *fixture) history() []*models.PlayHistory {
	f.t.Helper()
	history, err := f.coord.History(f.ctx, f.roomID, 0)
	require.NoError(f.t, err)
	return history
}

func (f *fixture) playingInStore() int {
	f.t.Helper()
	agg, err := f.store.LoadRoom(f.ctx, f.roomID, f.clock.Now())
	require.NoError(f.t, err)
	n := 0
	for _, e := range agg.Entries {
		if e.IsPlaying() {
			n++
		}
	}
	return n
}

func queueIDs(snap *Snapshot) []uuid.UUID {
	ids := make([]uuid.UUID, len(snap.Queue))
	for i, e := range snap.Queue {
		ids[i] = e.ID
	}
	return ids
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestCoordinator_FailedPersistLeavesStateUntouched(t *testing.T) {
	store := &failingStore{MemoryDB: database.NewMemoryDB()}
	f := newFixtureOn(t, store)
	first := f.enqueue(f.creator, "first")

	store.fail.Store(true)
	_, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "second"})
	require.Error(t, err)
	err = f.coord.Skip(f.ctx, f.roomID, f.creator)
	require.Error(t, err)

	store.fail.Store(false)
	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, first.ID, snap.Current.ID)
	assert.Empty(t, snap.Queue)
	assert.Empty(t, f.history())

	// The rejected enqueue left no trace, so the same video can be added now.
	f.enqueue(f.creator, "second")
	assert.Len(t, f.snapshot().Queue, 1)
}

func TestCoordinator_CommandErrorDiscardsPartialWrites(t *testing.T) {
	f := newFixture(t)
	f.enqueue(f.creator, "a")
	before := len(f.pub.types())

	err := f.coord.do(f.ctx, f.roomID, "test", func(s *roomState) error {
		s.room.Name = "renamed"
		s.markRoom()
		s.emit(events.EventTypeSettingsUpdated, f.creator, nil)
		return apperr.ErrInvalidInput
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "Sunday worship", f.snapshot().Room.Name)
	assert.Len(t, f.pub.types(), before, "no events from a failed command")
}

func TestCoordinator_ConcurrentSkipVotesSkipOnce(t *testing.T) {
	f := newFixture(t)
	voters := make([]uuid.UUID, 10)
	for i := range voters {
		voters[i] = f.join()
	}
	first := f.enqueue(f.creator, "first")
	second := f.enqueue(f.creator, "second")

	var (
		wg      sync.WaitGroup
		skipped atomic.Int32
		missing atomic.Int32
	)
	for _, v := range voters {
		wg.Add(1)
		go func(user uuid.UUID) {
			defer wg.Done()
			res, err := f.coord.CastVote(f.ctx, f.roomID, user, first.ID, models.VoteSkip)
			switch {
			case errors.Is(err, apperr.ErrEntryNotFound):
				missing.Add(1)
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case res.Skipped:
				skipped.Add(1)
			}
		}(v)
	}
	wg.Wait()

	// 11 active participants at threshold 0.5: the sixth vote skips.
	assert.Equal(t, int32(1), skipped.Load())
	assert.Equal(t, int32(4), missing.Load())
	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, second.ID, snap.Current.ID)
	require.Len(t, f.history(), 1)
	assert.Equal(t, 6, f.history()[0].Skips)
	assert.Equal(t, 1, f.playingInStore())
}

func TestCoordinator_EvictAndReload(t *testing.T) {
	f := newFixture(t)
	user := f.join()
	playing := f.enqueue(f.creator, "a")
	waiting := f.enqueue(f.creator, "b")
	_, err := f.coord.CastVote(f.ctx, f.roomID, user, waiting.ID, models.VoteUpvote)
	require.NoError(t, err)

	assert.True(t, f.coord.Evict(f.roomID))
	assert.Empty(t, f.coord.LoadedRooms())
	assert.False(t, f.coord.Evict(f.roomID))

	snap := f.snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, playing.ID, snap.Current.ID)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, 1, snap.Queue[0].Upvotes)
	assert.Len(t, snap.Participants, 2)
	assert.Len(t, f.coord.LoadedRooms(), 1)
}

func TestCoordinator_EvictIdle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 0, f.coord.EvictIdle(30*time.Minute))

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.coord.EvictIdle(30*time.Minute))
	assert.Empty(t, f.coord.LoadedRooms())
}

func TestCoordinator_SweepsDoNotKeepRoomLoaded(t *testing.T) {
	f := newFixture(t)
	listener := f.join()

	for i := 0; i < 60; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.coord.SweepAfk(f.ctx, f.roomID)
		require.NoError(t, err)
	}
	snap := f.snapshot()
	assert.Empty(t, snap.Participants, "everyone went AFK")

	assert.Equal(t, 0, f.coord.EvictIdle(30*time.Minute), "snapshot read counts as activity")
	f.clock.Advance(31 * time.Minute)
	_, err := f.coord.SweepAfk(f.ctx, f.roomID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.coord.EvictIdle(30*time.Minute))
	assert.Empty(t, f.coord.LoadedRooms())

	_, err = f.coord.Join(f.ctx, f.roomID, listener)
	require.NoError(t, err)
	assert.Len(t, f.coord.LoadedRooms(), 1)
}

func TestCoordinator_CooldownSurvivesReload(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	played := f.enqueue(f.creator, "amazing-grace")
	require.NoError(t, f.coord.Complete(f.ctx, f.roomID, f.creator, played.ID))

	f.clock.Advance(time.Hour)
	require.True(t, f.coord.Evict(f.roomID))
	_, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "amazing-grace"})
	assert.ErrorIs(t, err, apperr.ErrSongCooldownActive)

	f.clock.Advance(2 * time.Hour)
	require.True(t, f.coord.Evict(f.roomID))
	f.enqueue(f.creator, "amazing-grace")
}

func TestCoordinator_TimerCompletesEntry(t *testing.T) {
	f := newFixture(t)
	first, err := f.coord.Enqueue(f.ctx, f.roomID, f.creator, EnqueueRequest{VideoID: "short", DurationSeconds: 1})
	require.NoError(t, err)
	second := f.enqueue(f.creator, "next")

	require.Eventually(t, func() bool {
		snap, err := f.coord.Snapshot(f.ctx, f.roomID)
		return err == nil && snap.Current != nil && snap.Current.ID == second.ID
	}, 5*time.Second, 50*time.Millisecond)

	history := f.history()
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].QueueEntryID)
	assert.Equal(t, models.OutcomePlayed, history[0].Outcome)
}

func TestCoordinator_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Snapshot(f.ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
}

func TestCoordinator_ShutdownRejectsCommands(t *testing.T) {
	f := newFixture(t)
	f.coord.Shutdown()
	_, err := f.coord.Snapshot(f.ctx, f.roomID)
	assert.ErrorIs(t, err, errShuttingDown)
}

package room

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/metrics"
	"github.com/worship-room-service/pkg/models"
)

const commandBuffer = 64

// Store is the persistence the coordinator needs. *database.DB and
// *database.MemoryDB both satisfy it.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room, settings *models.RoomSettings) error
	GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	ListRooms(ctx context.Context, filter database.RoomFilter) ([]*models.Room, error)
	LoadRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (*database.RoomAggregate, error)
	Apply(ctx context.Context, cs *database.Changeset) error
	ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.PlayHistory, error)
	GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error)
}

type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

type SnapshotCache interface {
	SetSnapshot(ctx context.Context, roomID string, snapshot interface{}) error
	GetSnapshot(ctx context.Context, roomID string, dst interface{}) (bool, error)
	Invalidate(ctx context.Context, roomID string) error
}

type Throttler interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Option func(*Coordinator)

func WithSnapshotCache(cache SnapshotCache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

func WithThrottler(t Throttler) Option {
	return func(c *Coordinator) { c.throttle = t }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator runs one actor goroutine per loaded room. Every mutating
// command for a room goes through its actor, so commands on the same room
// are linearized while different rooms proceed in parallel.
type Coordinator struct {
	store     Store
	publisher Publisher
	cache     SnapshotCache
	throttle  Throttler
	now       func() time.Time

	mu     sync.Mutex
	actors map[uuid.UUID]*actor
	closed bool
}

func NewCoordinator(store Store, publisher Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		actors:    make(map[uuid.UUID]*actor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type command struct {
	ctx      context.Context
	op       string
	fn       func(*roomState) error
	readOnly bool
	// system commands come from the scheduler or timers and do not count as
	// room activity.
	system bool
	reply  chan error
}

type actor struct {
	coord  *Coordinator
	roomID uuid.UUID
	cmds   chan command
	quit   chan struct{}
	done   chan struct{}

	state      *roomState
	timer      *time.Timer
	lastActive atomic.Int64
	timerArmed atomic.Bool
}

var errShuttingDown = errors.New("coordinator is shutting down")

func (c *Coordinator) actorFor(roomID uuid.UUID) (*actor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errShuttingDown
	}
	if a, ok := c.actors[roomID]; ok {
		return a, nil
	}
	a := &actor{
		coord:  c,
		roomID: roomID,
		cmds:   make(chan command, commandBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	a.lastActive.Store(c.now().UnixNano())
	c.actors[roomID] = a
	metrics.RoomLoaded()
	go a.run()
	return a, nil
}

// do runs fn as a mutating command on the room's actor.
func (c *Coordinator) do(ctx context.Context, roomID uuid.UUID, op string, fn func(*roomState) error) error {
	return c.send(ctx, roomID, command{op: op, fn: fn})
}

// doSystem is do for housekeeping commands, which leave the idle clock alone.
func (c *Coordinator) doSystem(ctx context.Context, roomID uuid.UUID, op string, fn func(*roomState) error) error {
	return c.send(ctx, roomID, command{op: op, fn: fn, system: true})
}

// view runs fn against the live state without persisting anything.
func (c *Coordinator) view(ctx context.Context, roomID uuid.UUID, fn func(*roomState) error) error {
	return c.send(ctx, roomID, command{op: "view", fn: fn, readOnly: true})
}

func (c *Coordinator) send(ctx context.Context, roomID uuid.UUID, cmd command) error {
	started := time.Now()
	cmd.ctx = ctx
	for {
		a, err := c.actorFor(roomID)
		if err != nil {
			return err
		}
		cmd.reply = make(chan error, 1)

		select {
		case a.cmds <- cmd:
		case <-a.done:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-cmd.reply:
			if !cmd.readOnly {
				metrics.ObserveCommand(cmd.op, started, err)
			}
			return err
		case <-a.done:
			// The actor was evicted. If it answered first, use that.
			select {
			case err := <-cmd.reply:
				return err
			default:
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *actor) run() {
	defer close(a.done)
	for {
		select {
		case cmd := <-a.cmds:
			a.handle(cmd)
		case <-a.quit:
			a.disarm()
			return
		}
	}
}

func (a *actor) handle(cmd command) {
	c := a.coord
	if !cmd.system {
		a.lastActive.Store(c.now().UnixNano())
	}

	if a.state == nil {
		agg, err := c.store.LoadRoom(cmd.ctx, a.roomID, c.now())
		if err != nil {
			cmd.reply <- err
			return
		}
		a.state = newState(agg)
		a.state.begin(c.now())
		a.rearm()
	}

	if cmd.readOnly {
		a.state.now = c.now()
		cmd.reply <- cmd.fn(a.state)
		return
	}

	next := a.state.clone()
	next.begin(c.now())
	if err := cmd.fn(next); err != nil {
		cmd.reply <- err
		return
	}

	cs := next.changeset()
	if !cs.Empty() {
		if err := c.store.Apply(cmd.ctx, cs); err != nil {
			log.Printf("room %s: %s not applied: %v", a.roomID, cmd.op, err)
			cmd.reply <- err
			return
		}
	}
	a.state = next

	for _, h := range cs.History {
		metrics.SongFinished(string(h.Outcome), h.SkipReason)
	}
	a.publish(next.events)
	if !cs.Empty() {
		a.cacheSnapshot()
	}
	a.rearm()
	cmd.reply <- nil
}

// publish sends committed events. The command has already been persisted so
// a publish failure is logged, not returned.
func (a *actor) publish(evts []events.Event) {
	if len(evts) == 0 || a.coord.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.coord.publisher.Publish(ctx, evts...)
	metrics.EventsPublished(len(evts), err)
	if err != nil {
		logPublishFailure(a.roomID, err)
	}
}

func (a *actor) cacheSnapshot() {
	if a.coord.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.coord.cache.SetSnapshot(ctx, a.roomID.String(), a.state.snapshot()); err != nil {
		log.Printf("Warning: failed to cache room %s: %v", a.roomID, err)
	}
}

// rearm schedules natural completion of the playing entry when its length
// is known and the room auto-advances.
func (a *actor) rearm() {
	a.disarm()
	s := a.state
	if s == nil || !s.settings.AutoAdvance || !s.room.IsPlaying() {
		return
	}
	cur := s.current()
	if cur == nil || cur.DurationSeconds <= 0 {
		return
	}

	remaining := float64(cur.DurationSeconds) - s.room.CurrentPosition(a.coord.now())
	wait := time.Duration(remaining * float64(time.Second))
	if wait < 0 {
		wait = 0
	}
	roomID, entryID := a.roomID, cur.ID
	a.timer = time.AfterFunc(wait, func() {
		a.coord.completeFromTimer(roomID, entryID)
	})
	a.timerArmed.Store(true)
}

func (a *actor) disarm() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerArmed.Store(false)
}

func (c *Coordinator) completeFromTimer(roomID, entryID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.doSystem(ctx, roomID, "complete", func(s *roomState) error {
		cur := s.current()
		if cur == nil || cur.ID != entryID {
			return nil
		}
		return s.completeCurrent()
	})
	if err != nil {
		log.Printf("room %s: auto advance failed: %v", roomID, err)
	}
}

// Evict unloads a room's actor. The room reloads from the store on its next
// command.
func (c *Coordinator) Evict(roomID uuid.UUID) bool {
	c.mu.Lock()
	a, ok := c.actors[roomID]
	if ok {
		delete(c.actors, roomID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	close(a.quit)
	<-a.done
	metrics.RoomUnloaded()
	return true
}

// EvictIdle unloads rooms that have had no command for maxIdle and are not
// waiting on a completion timer. It returns how many were unloaded.
func (c *Coordinator) EvictIdle(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle).UnixNano()

	c.mu.Lock()
	idle := make([]uuid.UUID, 0)
	for id, a := range c.actors {
		if a.lastActive.Load() < cutoff && !a.timerArmed.Load() {
			idle = append(idle, id)
		}
	}
	c.mu.Unlock()

	n := 0
	for _, id := range idle {
		if c.Evict(id) {
			n++
		}
	}
	return n
}

// LoadedRooms lists the rooms that currently have an actor.
func (c *Coordinator) LoadedRooms() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(c.actors))
	for id := range c.actors {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every actor. Commands already queued are dropped.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	ids := make([]uuid.UUID, 0, len(c.actors))
	for id := range c.actors {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Evict(id)
	}
}

func logPublishFailure(roomID uuid.UUID, err error) {
	log.Printf("room %s: failed to publish events: %v", roomID, err)
}

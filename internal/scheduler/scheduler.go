package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/worship-room-service/internal/room"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/models"
)

const (
	DefaultSweepSchedule = "@every 1m"
	DefaultEvictSchedule = "@every 5m"
	jobTimeout           = 2 * time.Minute
)

// Rooms is what the scheduled jobs drive.
type Rooms interface {
	LoadedRooms() []uuid.UUID
	SweepAfk(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	ListRooms(ctx context.Context, filter database.RoomFilter) ([]*models.Room, error)
	ActivateRoom(ctx context.Context, roomID, actorID uuid.UUID) error
	CloseRoom(ctx context.Context, roomID, actorID uuid.UUID) error
	EvictIdle(maxIdle time.Duration) int
}

type Config struct {
	SweepSchedule string
	EvictSchedule string
	IdleTimeout   time.Duration
}

// Scheduler runs the periodic room jobs: AFK sweeps, opening and closing
// scheduled live events, and unloading idle rooms.
type Scheduler struct {
	cron  *cron.Cron
	rooms Rooms
	cfg   Config
	now   func() time.Time
}

func New(rooms Rooms, cfg Config) *Scheduler {
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.EvictSchedule == "" {
		cfg.EvictSchedule = DefaultEvictSchedule
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(time.UTC)),
		rooms: rooms,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.job("sweep", func(ctx context.Context) {
		s.SweepAfk(ctx)
		s.SyncLiveEvents(ctx)
	})); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.EvictSchedule, s.job("evict", func(ctx context.Context) {
		if n := s.rooms.EvictIdle(s.cfg.IdleTimeout); n > 0 {
			log.Printf("scheduler: unloaded %d idle rooms", n)
		}
	})); err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Scheduler started (sweep %q, evict %q)", s.cfg.SweepSchedule, s.cfg.EvictSchedule)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) job(name string, fn func(ctx context.Context)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		started := time.Now()
		fn(ctx)
		log.Printf("scheduler: %s job finished in %v", name, time.Since(started))
	}
}

// SweepAfk removes idle participants from every loaded room. An unloaded
// room is swept by the first run after it loads again.
func (s *Scheduler) SweepAfk(ctx context.Context) int {
	total := 0
	for _, roomID := range s.rooms.LoadedRooms() {
		removed, err := s.rooms.SweepAfk(ctx, roomID)
		if err != nil {
			log.Printf("scheduler: afk sweep of room %s failed: %v", roomID, err)
			continue
		}
		total += len(removed)
	}
	return total
}

// SyncLiveEvents opens LIVE_EVENT rooms whose start time has come and closes
// the ones whose end time has passed.
func (s *Scheduler) SyncLiveEvents(ctx context.Context) (opened, closed int) {
	rooms, err := s.rooms.ListRooms(ctx, database.RoomFilter{Type: models.RoomTypeLiveEvent})
	if err != nil {
		log.Printf("scheduler: failed to list live events: %v", err)
		return 0, 0
	}

	now := s.now()
	for _, r := range rooms {
		switch {
		case r.ShouldAutoStart(now):
			if err := s.rooms.ActivateRoom(ctx, r.ID, room.SystemUser); err != nil {
				log.Printf("scheduler: failed to open live event %s: %v", r.ID, err)
				continue
			}
			opened++
		case r.ShouldAutoEnd(now):
			if err := s.rooms.CloseRoom(ctx, r.ID, room.SystemUser); err != nil {
				log.Printf("scheduler: failed to close live event %s: %v", r.ID, err)
				continue
			}
			closed++
		}
	}
	return opened, closed
}

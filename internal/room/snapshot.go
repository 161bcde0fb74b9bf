package room

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/models"
)

// Snapshot is the full state a client needs to render and sync a room.
type Snapshot struct {
	Room         models.Room          `json:"room"`
	Settings     models.RoomSettings  `json:"settings"`
	Position     float64              `json:"position"`
	ServerTime   time.Time            `json:"server_time"`
	Current      *EntryView           `json:"current,omitempty"`
	Queue        []EntryView          `json:"queue"`
	Participants []models.Participant `json:"participants"`
	Waitlist     []string             `json:"waitlist"`
}

// EntryView is a queue entry with its live tally.
type EntryView struct {
	models.QueueEntry
	Upvotes        int     `json:"upvotes"`
	Skips          int     `json:"skips"`
	SkipPercentage float64 `json:"skip_percentage"`
}

func (s *roomState) entryView(e *models.QueueEntry, active int) EntryView {
	t := s.tally(e.ID)
	return EntryView{
		QueueEntry:     *e,
		Upvotes:        t.Upvotes,
		Skips:          t.Skips,
		SkipPercentage: t.SkipPercentage(active),
	}
}

func (s *roomState) snapshot() *Snapshot {
	active := s.activeParticipants()
	snap := &Snapshot{
		Room:         *s.room,
		Settings:     *s.settings.Clone(),
		Position:     s.room.CurrentPosition(s.now),
		ServerTime:   s.now,
		Queue:        make([]EntryView, 0, len(s.entries)),
		Participants: make([]models.Participant, 0, len(active)),
		Waitlist:     s.waitlistUserIDs(),
	}
	if cur := s.current(); cur != nil {
		view := s.entryView(cur, len(active))
		snap.Current = &view
	}
	for _, e := range s.waiting() {
		snap.Queue = append(snap.Queue, s.entryView(e, len(active)))
	}
	for _, p := range active {
		snap.Participants = append(snap.Participants, *p)
	}
	return snap
}

// Snapshot returns the room as the actor currently holds it.
func (c *Coordinator) Snapshot(ctx context.Context, roomID uuid.UUID) (*Snapshot, error) {
	var snap *Snapshot
	err := c.view(ctx, roomID, func(s *roomState) error {
		snap = s.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// CachedSnapshot serves the last published snapshot without waking the
// room, falling back to the actor on a miss.
func (c *Coordinator) CachedSnapshot(ctx context.Context, roomID uuid.UUID) (*Snapshot, error) {
	if c.cache != nil {
		var snap Snapshot
		found, err := c.cache.GetSnapshot(ctx, roomID.String(), &snap)
		if err != nil {
			log.Printf("Warning: failed to read cached room %s: %v", roomID, err)
		}
		if found {
			return &snap, nil
		}
	}
	return c.Snapshot(ctx, roomID)
}

package room

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/models"
)

// waiting returns WAITING entries by position, ties broken by queue time.
func (s *roomState) waiting() []*models.QueueEntry {
	list := make([]*models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.IsWaiting() {
			list = append(list, e)
		}
	}
	sortEntries(list)
	return list
}

func sortEntries(list []*models.QueueEntry) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].QueuedAt.Before(list[j].QueuedAt)
	})
}

// appendPosition is one step past the last entry in the room.
func (s *roomState) appendPosition() int {
	last := 0
	for _, e := range s.entries {
		if e.Position > last {
			last = e.Position
		}
	}
	return last + models.PositionStep
}

// nextPlayable is the lowest positioned WAITING entry that has been approved.
func (s *roomState) nextPlayable() *models.QueueEntry {
	for _, e := range s.waiting() {
		if e.IsApproved {
			return e
		}
	}
	return nil
}

func (s *roomState) queuedBy(userID uuid.UUID) int {
	n := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

func (s *roomState) isQueued(videoID string) bool {
	for _, e := range s.entries {
		if e.VideoID == videoID {
			return true
		}
	}
	return false
}

// onCooldown reports whether videoID finished inside the cooldown window.
func (s *roomState) onCooldown(videoID string) bool {
	hours := s.settings.SongCooldownHours
	if hours <= 0 {
		return false
	}
	since := s.now.Add(-time.Duration(hours) * time.Hour)
	for _, h := range s.history {
		if h.VideoID == videoID && h.EndedAt.After(since) {
			return true
		}
	}
	return false
}

// renumber spaces the waiting queue evenly, keeping its order.
func (s *roomState) renumber(list []*models.QueueEntry) {
	for i, e := range list {
		pos := (i + 1) * models.PositionStep
		if e.Position != pos {
			e.Position = pos
			s.markEntry(e)
		}
	}
}

// move places e at index among the other waiting entries, taking the
// midpoint between its new neighbours. When the neighbours are adjacent
// integers the waiting queue is renumbered first.
func (s *roomState) move(e *models.QueueEntry, index int) {
	others := make([]*models.QueueEntry, 0)
	for _, w := range s.waiting() {
		if w.ID != e.ID {
			others = append(others, w)
		}
	}
	if index < 0 {
		index = 0
	}
	if index > len(others) {
		index = len(others)
	}

	lo, hi, ok := gap(others, index)
	if !ok {
		s.renumber(others)
		lo, hi, _ = gap(others, index)
	}
	e.Position = lo + (hi-lo)/2
	s.markEntry(e)
}

// gap returns the open interval an entry at index must fall into and
// whether it contains an integer.
func gap(list []*models.QueueEntry, index int) (lo, hi int, ok bool) {
	if index > 0 {
		lo = list[index-1].Position
	}
	if index < len(list) {
		hi = list[index].Position
	} else {
		hi = lo + 2*models.PositionStep
	}
	return lo, hi, hi-lo >= 2
}

func (s *roomState) queueOrder() []string {
	list := s.waiting()
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID.String()
	}
	return ids
}

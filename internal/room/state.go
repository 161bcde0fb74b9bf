package room

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

// roomState is the in-memory arena for one room. Records live in per-type
// maps keyed by id; relationships are plain id fields. A command works on a
// clone and the clone replaces the live state only once it has been
// persisted.
type roomState struct {
	room         *models.Room
	settings     *models.RoomSettings
	participants map[uuid.UUID]*models.Participant // keyed by user id
	entries      map[uuid.UUID]*models.QueueEntry  // unfinished entries
	votes        map[uuid.UUID][]*models.Vote      // keyed by queue entry id
	history      []*models.PlayHistory
	playlist     *models.Playlist

	now     time.Time
	changes changes
	events  []events.Event
}

// changes records which rows the running command touched.
type changes struct {
	room         bool
	settings     bool
	participants map[uuid.UUID]*models.Participant
	created      map[uuid.UUID]*models.QueueEntry
	updated      map[uuid.UUID]*models.QueueEntry
	deleted      []uuid.UUID
	claimed      *uuid.UUID
	newVotes     []*models.Vote
	deletedVotes []uuid.UUID
	history      []*models.PlayHistory
}

func newState(agg *database.RoomAggregate) *roomState {
	s := &roomState{
		room:         agg.Room,
		settings:     agg.Settings,
		participants: make(map[uuid.UUID]*models.Participant, len(agg.Participants)),
		entries:      make(map[uuid.UUID]*models.QueueEntry, len(agg.Entries)),
		votes:        make(map[uuid.UUID][]*models.Vote),
		history:      agg.History,
		playlist:     agg.Playlist,
	}
	if s.settings == nil {
		s.settings = models.DefaultRoomSettings(agg.Room.ID)
	}
	for _, p := range agg.Participants {
		s.participants[p.UserID] = p
	}
	for _, e := range agg.Entries {
		if !e.IsTerminal() {
			e.Votes = nil
			s.entries[e.ID] = e
		}
	}
	for _, v := range agg.Votes {
		if _, ok := s.entries[v.QueueEntryID]; ok {
			s.votes[v.QueueEntryID] = append(s.votes[v.QueueEntryID], v)
		}
	}
	return s
}

// clone copies every mutable record. Votes, history rows and the playlist
// are never modified in place so their pointers are shared.
func (s *roomState) clone() *roomState {
	room := *s.room
	c := &roomState{
		room:         &room,
		settings:     s.settings.Clone(),
		participants: make(map[uuid.UUID]*models.Participant, len(s.participants)),
		entries:      make(map[uuid.UUID]*models.QueueEntry, len(s.entries)),
		votes:        make(map[uuid.UUID][]*models.Vote, len(s.votes)),
		history:      append([]*models.PlayHistory(nil), s.history...),
		playlist:     s.playlist,
	}
	for id, p := range s.participants {
		participant := *p
		c.participants[id] = &participant
	}
	for id, e := range s.entries {
		entry := *e
		c.entries[id] = &entry
	}
	for id, vs := range s.votes {
		c.votes[id] = append([]*models.Vote(nil), vs...)
	}
	return c
}

func (s *roomState) begin(now time.Time) {
	s.now = now
	s.changes = changes{
		participants: make(map[uuid.UUID]*models.Participant),
		created:      make(map[uuid.UUID]*models.QueueEntry),
		updated:      make(map[uuid.UUID]*models.QueueEntry),
	}
	s.events = nil
}

func (s *roomState) markRoom()     { s.changes.room = true }
func (s *roomState) markSettings() { s.changes.settings = true }

func (s *roomState) markParticipant(p *models.Participant) {
	s.changes.participants[p.ID] = p
}

func (s *roomState) addEntry(e *models.QueueEntry) {
	s.entries[e.ID] = e
	s.changes.created[e.ID] = e
}

func (s *roomState) markEntry(e *models.QueueEntry) {
	if _, isNew := s.changes.created[e.ID]; isNew {
		return
	}
	s.changes.updated[e.ID] = e
}

// removeEntry hard-deletes an entry that never finished. Its votes go with it.
func (s *roomState) removeEntry(e *models.QueueEntry) {
	delete(s.entries, e.ID)
	delete(s.votes, e.ID)
	delete(s.changes.updated, e.ID)
	if _, isNew := s.changes.created[e.ID]; isNew {
		delete(s.changes.created, e.ID)
		return
	}
	s.changes.deleted = append(s.changes.deleted, e.ID)
}

// retire drops a finished entry from the arena after recording its update.
func (s *roomState) retire(e *models.QueueEntry) {
	s.markEntry(e)
	delete(s.entries, e.ID)
	delete(s.votes, e.ID)
}

func (s *roomState) claim(e *models.QueueEntry) {
	id := e.ID
	s.changes.claimed = &id
	s.markEntry(e)
}

func (s *roomState) addVote(v *models.Vote) {
	s.votes[v.QueueEntryID] = append(s.votes[v.QueueEntryID], v)
	s.changes.newVotes = append(s.changes.newVotes, v)
}

func (s *roomState) removeVote(v *models.Vote) {
	vs := s.votes[v.QueueEntryID]
	for i, existing := range vs {
		if existing.ID == v.ID {
			s.votes[v.QueueEntryID] = append(vs[:i:i], vs[i+1:]...)
			break
		}
	}
	s.changes.deletedVotes = append(s.changes.deletedVotes, v.ID)
}

func (s *roomState) addHistory(h *models.PlayHistory) {
	s.history = append(s.history, h)
	s.changes.history = append(s.changes.history, h)
}

func (s *roomState) emit(eventType events.EventType, userID uuid.UUID, payload interface{}) {
	var user string
	if userID != uuid.Nil {
		user = userID.String()
	}
	event, err := events.NewEvent(eventType, s.room.ID.String(), user, payload, s.now)
	if err != nil {
		log.Printf("room %s: dropping %s event: %v", s.room.ID, eventType, err)
		return
	}
	s.events = append(s.events, event)
}

// changeset collects the rows written by the running command.
func (s *roomState) changeset() *database.Changeset {
	cs := &database.Changeset{
		DeletedEntries: s.changes.deleted,
		ClaimedEntryID: s.changes.claimed,
		NewVotes:       s.changes.newVotes,
		DeletedVotes:   s.changes.deletedVotes,
		History:        s.changes.history,
	}
	if s.changes.room {
		cs.Room = s.room
	}
	if s.changes.settings {
		cs.Settings = s.settings
	}
	for _, p := range s.changes.participants {
		cs.Participants = append(cs.Participants, p)
	}
	for _, e := range s.changes.created {
		cs.NewEntries = append(cs.NewEntries, e)
	}
	for _, e := range s.changes.updated {
		cs.UpdatedEntries = append(cs.UpdatedEntries, e)
	}
	return cs
}

// requireActive rejects commands against a closed room.
func (s *roomState) requireActive() error {
	if !s.room.IsActive {
		return apperr.ErrRoomInactive
	}
	return nil
}

func (s *roomState) entry(id uuid.UUID) (*models.QueueEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, apperr.ErrEntryNotFound
	}
	return e, nil
}

// current returns the PLAYING entry, if any.
func (s *roomState) current() *models.QueueEntry {
	if s.room.CurrentEntryID == nil {
		return nil
	}
	e, ok := s.entries[*s.room.CurrentEntryID]
	if !ok || !e.IsPlaying() {
		return nil
	}
	return e
}

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/models"
)

// MemoryDB is an in-process store with the same constraints as the SQL
// schema: unique participants per room, unique votes per (entry, user, type)
// and a single PLAYING entry per room. Used for development and tests.
type MemoryDB struct {
	mu           sync.RWMutex
	rooms        map[uuid.UUID]models.Room
	settings     map[uuid.UUID]*models.RoomSettings
	participants map[uuid.UUID]models.Participant
	entries      map[uuid.UUID]models.QueueEntry
	votes        map[uuid.UUID]models.Vote
	history      []models.PlayHistory
	playlists    map[uuid.UUID]models.Playlist
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		rooms:        make(map[uuid.UUID]models.Room),
		settings:     make(map[uuid.UUID]*models.RoomSettings),
		participants: make(map[uuid.UUID]models.Participant),
		entries:      make(map[uuid.UUID]models.QueueEntry),
		votes:        make(map[uuid.UUID]models.Vote),
		playlists:    make(map[uuid.UUID]models.Playlist),
	}
}

func (m *MemoryDB) CreateRoom(ctx context.Context, room *models.Room, settings *models.RoomSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return fmt.Errorf("failed to create room: room %s already exists", room.ID)
	}
	now := time.Now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	m.rooms[room.ID] = *room
	m.settings[room.ID] = settings.Clone()
	return nil
}

func (m *MemoryDB) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	return &room, nil
}

func (m *MemoryDB) ListRooms(ctx context.Context, filter RoomFilter) ([]*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !r.IsActive {
			continue
		}
		if filter.PublicOnly && r.IsPrivate {
			continue
		}
		room := r
		rooms = append(rooms, &room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(rooms) {
			return []*models.Room{}, nil
		}
		rooms = rooms[filter.Offset:]
	}
	if filter.Limit > 0 && len(rooms) > filter.Limit {
		rooms = rooms[:filter.Limit]
	}
	return rooms, nil
}

func (m *MemoryDB) LoadRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (*RoomAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}

	agg := &RoomAggregate{Room: &room}
	if s, ok := m.settings[roomID]; ok {
		agg.Settings = s.Clone()
	} else {
		agg.Settings = models.DefaultRoomSettings(roomID)
	}

	for _, p := range m.participants {
		if p.RoomID == roomID {
			participant := p
			agg.Participants = append(agg.Participants, &participant)
		}
	}

	live := make(map[uuid.UUID]bool)
	for _, e := range m.entries {
		if e.RoomID == roomID && !e.IsTerminal() {
			entry := e
			agg.Entries = append(agg.Entries, &entry)
			live[e.ID] = true
		}
	}
	sort.Slice(agg.Entries, func(i, j int) bool {
		return agg.Entries[i].Position < agg.Entries[j].Position
	})

	for _, v := range m.votes {
		if live[v.QueueEntryID] {
			vote := v
			agg.Votes = append(agg.Votes, &vote)
		}
	}

	if agg.Settings.SongCooldownHours > 0 {
		since := now.Add(-time.Duration(agg.Settings.SongCooldownHours) * time.Hour)
		for _, h := range m.history {
			if h.RoomID == roomID && !h.EndedAt.Before(since) {
				record := h
				agg.History = append(agg.History, &record)
			}
		}
	}

	if room.PlaylistID != nil {
		if p, ok := m.playlists[*room.PlaylistID]; ok {
			agg.Playlist = copyPlaylist(p)
		}
	}

	return agg, nil
}

func (m *MemoryDB) Apply(ctx context.Context, cs *Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(cs); err != nil {
		return err
	}

	if cs.Room != nil {
		room := *cs.Room
		room.UpdatedAt = time.Now()
		m.rooms[room.ID] = room
	}
	if cs.Settings != nil {
		m.settings[cs.Settings.RoomID] = cs.Settings.Clone()
	}
	for _, p := range cs.Participants {
		m.participants[p.ID] = *p
	}

	deleted := make(map[uuid.UUID]bool, len(cs.DeletedEntries))
	for _, id := range cs.DeletedVotes {
		delete(m.votes, id)
	}
	for _, id := range cs.DeletedEntries {
		deleted[id] = true
		delete(m.entries, id)
	}
	for id, v := range m.votes {
		if deleted[v.QueueEntryID] {
			delete(m.votes, id)
		}
	}

	for _, e := range cs.UpdatedEntries {
		m.entries[e.ID] = stripVotes(*e)
	}
	for _, e := range cs.NewEntries {
		m.entries[e.ID] = stripVotes(*e)
	}
	for _, v := range cs.NewVotes {
		m.votes[v.ID] = *v
	}
	for _, h := range cs.History {
		m.history = append(m.history, *h)
	}

	return nil
}

// validate checks the changeset against the stored rows before anything is
// written, so a failed Apply leaves the store untouched.
func (m *MemoryDB) validate(cs *Changeset) error {
	for _, p := range cs.Participants {
		for id, existing := range m.participants {
			if id != p.ID && existing.RoomID == p.RoomID && existing.UserID == p.UserID {
				return fmt.Errorf("failed to save participant: duplicate (room, user) %s/%s", p.RoomID, p.UserID)
			}
		}
	}

	if cs.ClaimedEntryID != nil {
		claimed := *cs.ClaimedEntryID
		if stored, ok := m.entries[claimed]; ok && stored.Status != models.QueueStatusWaiting {
			return apperr.ErrConcurrentModification.Withf("queue entry %s is no longer waiting", claimed)
		}

		after := make(map[uuid.UUID]models.QueueEntry)
		for id, e := range m.entries {
			after[id] = e
		}
		for _, id := range cs.DeletedEntries {
			delete(after, id)
		}
		for _, e := range cs.UpdatedEntries {
			after[e.ID] = *e
		}
		for _, e := range cs.NewEntries {
			after[e.ID] = *e
		}
		roomID := after[claimed].RoomID
		playing := 0
		for _, e := range after {
			if e.RoomID == roomID && e.IsPlaying() {
				playing++
			}
		}
		if playing > 1 {
			return apperr.ErrConcurrentModification.Withf("another entry is already playing")
		}
	}

	if len(cs.NewVotes) > 0 {
		removed := make(map[uuid.UUID]bool, len(cs.DeletedVotes))
		for _, id := range cs.DeletedVotes {
			removed[id] = true
		}
		type voteKey struct {
			entry, user uuid.UUID
			voteType    models.VoteType
		}
		seen := make(map[voteKey]bool)
		for id, v := range m.votes {
			if !removed[id] {
				seen[voteKey{v.QueueEntryID, v.UserID, v.VoteType}] = true
			}
		}
		for _, v := range cs.NewVotes {
			k := voteKey{v.QueueEntryID, v.UserID, v.VoteType}
			if seen[k] {
				return apperr.ErrAlreadyVoted
			}
			seen[k] = true
		}
	}

	return nil
}

func (m *MemoryDB) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.PlayHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	history := make([]*models.PlayHistory, 0)
	for i := len(m.history) - 1; i >= 0 && len(history) < limit; i-- {
		if m.history[i].RoomID == roomID {
			record := m.history[i]
			history = append(history, &record)
		}
	}
	return history, nil
}

func (m *MemoryDB) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now
	m.playlists[playlist.ID] = *copyPlaylist(*playlist)
	return nil
}

func (m *MemoryDB) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.playlists[id]
	if !ok {
		return nil, apperr.ErrPlaylistNotFound
	}
	return copyPlaylist(p), nil
}

func (m *MemoryDB) ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	playlists := make([]*models.Playlist, 0)
	for _, p := range m.playlists {
		if p.OwnerID == ownerID {
			playlist := copyPlaylist(p)
			playlist.Items = nil
			playlists = append(playlists, playlist)
		}
	}
	sort.Slice(playlists, func(i, j int) bool {
		return playlists[i].CreatedAt.After(playlists[j].CreatedAt)
	})
	return playlists, nil
}

func copyPlaylist(p models.Playlist) *models.Playlist {
	c := p
	c.Items = append([]models.PlaylistItem(nil), p.Items...)
	c.SortItems()
	return &c
}

func stripVotes(e models.QueueEntry) models.QueueEntry {
	e.Votes = nil
	return e
}

package database

import (
	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/models"
)

// RoomAggregate is everything the coordinator needs in memory to run a room:
// the room row, its settings, every participant row, the unfinished queue
// with its votes, recent history for cooldown checks and the attached playlist.
type RoomAggregate struct {
	Room         *models.Room
	Settings     *models.RoomSettings
	Participants []*models.Participant
	Entries      []*models.QueueEntry
	Votes        []*models.Vote
	History      []*models.PlayHistory
	Playlist     *models.Playlist
}

// Changeset is the set of rows one room command wrote. It is applied
// atomically.
type Changeset struct {
	Room           *models.Room
	Settings       *models.RoomSettings
	Participants   []*models.Participant
	NewEntries     []*models.QueueEntry
	UpdatedEntries []*models.QueueEntry
	DeletedEntries []uuid.UUID
	// ClaimedEntryID is the entry that moved into the PLAYING slot, if any.
	ClaimedEntryID *uuid.UUID
	NewVotes       []*models.Vote
	DeletedVotes   []uuid.UUID
	History        []*models.PlayHistory
}

func (c *Changeset) Empty() bool {
	return c.Room == nil &&
		c.Settings == nil &&
		len(c.Participants) == 0 &&
		len(c.NewEntries) == 0 &&
		len(c.UpdatedEntries) == 0 &&
		len(c.DeletedEntries) == 0 &&
		len(c.NewVotes) == 0 &&
		len(c.DeletedVotes) == 0 &&
		len(c.History) == 0
}

// RoomFilter narrows ListRooms.
type RoomFilter struct {
	Type       models.RoomType
	ActiveOnly bool
	PublicOnly bool
	Limit      int
	Offset     int
}

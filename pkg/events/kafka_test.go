package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)

	t.Run("marshals payload", func(t *testing.T) {
		event, err := NewEvent(EventTypeSongVoted, "room-1", "user-1", SongVotedPayload{
			EntryID:  "entry-1",
			VoteType: "SKIP",
			Skips:    2,
			Active:   4,
		}, at)
		require.NoError(t, err)

		assert.Equal(t, EventTypeSongVoted, event.Type)
		assert.Equal(t, at, event.Timestamp)

		var payload SongVotedPayload
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, 2, payload.Skips)
		assert.Equal(t, "entry-1", payload.EntryID)
	})

	t.Run("nil payload", func(t *testing.T) {
		event, err := NewEvent(EventTypeRoomClosed, "room-1", "", nil, at)
		require.NoError(t, err)
		assert.Nil(t, event.Payload)
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		_, err := NewEvent(EventTypeChatMessage, "room-1", "", make(chan int), at)
		assert.Error(t, err)
	})
}

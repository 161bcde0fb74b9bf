package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeRoomCreated      EventType = "room_created"
	EventTypeRoomActivated    EventType = "room_activated"
	EventTypeRoomClosed       EventType = "room_closed"
	EventTypeSettingsUpdated  EventType = "settings_updated"
	EventTypeUserJoined       EventType = "user_joined"
	EventTypeUserLeft         EventType = "user_left"
	EventTypeUserAfk          EventType = "user_afk"
	EventTypeRoleChanged      EventType = "role_changed"
	EventTypeLeaderChanged    EventType = "leader_changed"
	EventTypeWaitlistUpdated  EventType = "waitlist_updated"
	EventTypeSongAdded        EventType = "song_added"
	EventTypeSongUpdated      EventType = "song_updated"
	EventTypeSongRemoved      EventType = "song_removed"
	EventTypeQueueReordered   EventType = "queue_reordered"
	EventTypeSongVoted        EventType = "song_voted"
	EventTypeVoteRetracted    EventType = "vote_retracted"
	EventTypeSongStarted      EventType = "song_started"
	EventTypeSongCompleted    EventType = "song_completed"
	EventTypeSongSkipped      EventType = "song_skipped"
	EventTypePlaybackPaused   EventType = "playback_paused"
	EventTypePlaybackResumed  EventType = "playback_resumed"
	EventTypePlaybackSeeked   EventType = "playback_seeked"
	EventTypePlaybackStopped  EventType = "playback_stopped"
	EventTypePlaylistAttached EventType = "playlist_attached"
	EventTypePlaylistDetached EventType = "playlist_detached"
	EventTypeChatMessage      EventType = "chat_message"
)

type Event struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"room_id"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with payload marshaled to JSON.
func NewEvent(eventType EventType, roomID, userID string, payload interface{}, at time.Time) (Event, error) {
	event := Event{
		Type:      eventType,
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: at,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		event.Payload = raw
	}
	return event, nil
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
	}
}

// Publish writes events keyed by room so each room's events stay ordered
// within a partition.
func (k *KafkaClient) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(evts))
	for _, event := range evts {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.RoomID),
			Value: value,
			Time:  event.Timestamp,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages: %w", err)
	}

	return nil
}

func (k *KafkaClient) ConsumeEvents(ctx context.Context, handler func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}

			if err := handler(event); err != nil {
				return fmt.Errorf("failed to handle event: %w", err)
			}
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}

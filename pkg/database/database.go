package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/models"
)

type DB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	return open(mysql.Open(dsn))
}

func NewPostgresDB(dsn string) (*DB, error) {
	return open(postgres.Open(dsn))
}

func open(dialector gorm.Dialector) (*DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(
		&models.Room{},
		&models.RoomSettings{},
		&models.Participant{},
		&models.QueueEntry{},
		&models.Vote{},
		&models.PlayHistory{},
		&models.Playlist{},
		&models.PlaylistItem{},
	)
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Room operations

func (db *DB) CreateRoom(ctx context.Context, room *models.Room, settings *models.RoomSettings) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		if err := tx.Create(settings).Error; err != nil {
			return fmt.Errorf("failed to create room settings: %w", err)
		}
		return nil
	})
}

func (db *DB) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

func (db *DB) ListRooms(ctx context.Context, filter RoomFilter) ([]*models.Room, error) {
	q := db.WithContext(ctx).Model(&models.Room{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.PublicOnly {
		q = q.Where("is_private = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rooms []*models.Room
	if err := q.Order("created_at DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// LoadRoom reads everything the coordinator holds for a room. History is
// limited to the song cooldown window ending at now.
func (db *DB) LoadRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (*RoomAggregate, error) {
	room, err := db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	tx := db.WithContext(ctx)

	agg := &RoomAggregate{Room: room}

	var settings models.RoomSettings
	if err := tx.First(&settings, "room_id = ?", roomID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get room settings: %w", err)
		}
		agg.Settings = models.DefaultRoomSettings(roomID)
	} else {
		agg.Settings = &settings
	}

	if err := tx.Where("room_id = ?", roomID).Find(&agg.Participants).Error; err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	if err := tx.Where("room_id = ? AND status IN ?", roomID,
		[]models.QueueStatus{models.QueueStatusWaiting, models.QueueStatusPlaying}).
		Order("position ASC").
		Find(&agg.Entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	if len(agg.Entries) > 0 {
		ids := make([]uuid.UUID, 0, len(agg.Entries))
		for _, e := range agg.Entries {
			ids = append(ids, e.ID)
		}
		if err := tx.Where("queue_entry_id IN ?", ids).Find(&agg.Votes).Error; err != nil {
			return nil, fmt.Errorf("failed to get votes: %w", err)
		}
	}

	if agg.Settings.SongCooldownHours > 0 {
		since := now.Add(-time.Duration(agg.Settings.SongCooldownHours) * time.Hour)
		if err := tx.Where("room_id = ? AND ended_at >= ?", roomID, since).
			Order("ended_at ASC").
			Find(&agg.History).Error; err != nil {
			return nil, fmt.Errorf("failed to get play history: %w", err)
		}
	}

	if room.PlaylistID != nil {
		playlist, err := db.GetPlaylist(ctx, *room.PlaylistID)
		if err != nil && !errors.Is(err, apperr.ErrPlaylistNotFound) {
			return nil, err
		}
		agg.Playlist = playlist
	}

	return agg, nil
}

// Apply writes a changeset in one transaction. Claiming the PLAYING slot only
// succeeds if the entry is still WAITING and no other entry of the room is
// playing.
func (db *DB) Apply(ctx context.Context, cs *Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cs.Room != nil {
			if err := tx.Save(cs.Room).Error; err != nil {
				return fmt.Errorf("failed to save room: %w", err)
			}
		}
		if cs.Settings != nil {
			if err := tx.Save(cs.Settings).Error; err != nil {
				return fmt.Errorf("failed to save room settings: %w", err)
			}
		}
		for _, p := range cs.Participants {
			if err := tx.Save(p).Error; err != nil {
				return fmt.Errorf("failed to save participant: %w", err)
			}
		}

		if len(cs.DeletedVotes) > 0 {
			if err := tx.Delete(&models.Vote{}, "id IN ?", cs.DeletedVotes).Error; err != nil {
				return fmt.Errorf("failed to delete votes: %w", err)
			}
		}
		if len(cs.DeletedEntries) > 0 {
			if err := tx.Delete(&models.Vote{}, "queue_entry_id IN ?", cs.DeletedEntries).Error; err != nil {
				return fmt.Errorf("failed to delete entry votes: %w", err)
			}
			if err := tx.Delete(&models.QueueEntry{}, "id IN ?", cs.DeletedEntries).Error; err != nil {
				return fmt.Errorf("failed to delete queue entries: %w", err)
			}
		}

		for _, e := range cs.UpdatedEntries {
			if cs.ClaimedEntryID != nil && *cs.ClaimedEntryID == e.ID {
				res := tx.Model(&models.QueueEntry{}).
					Where("id = ? AND status = ?", e.ID, models.QueueStatusWaiting).
					Updates(map[string]interface{}{
						"status":      e.Status,
						"played_at":   e.PlayedAt,
						"position":    e.Position,
						"is_approved": e.IsApproved,
					})
				if res.Error != nil {
					return fmt.Errorf("failed to claim queue entry: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					return apperr.ErrConcurrentModification.Withf("queue entry %s is no longer waiting", e.ID)
				}
				continue
			}
			if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
				return fmt.Errorf("failed to save queue entry: %w", err)
			}
		}
		for _, e := range cs.NewEntries {
			if err := tx.Omit(clause.Associations).Create(e).Error; err != nil {
				return fmt.Errorf("failed to create queue entry: %w", err)
			}
		}

		if cs.ClaimedEntryID != nil {
			var playing int64
			if err := tx.Model(&models.QueueEntry{}).
				Where("room_id = ? AND status = ? AND id <> ?", roomOf(cs), models.QueueStatusPlaying, *cs.ClaimedEntryID).
				Count(&playing).Error; err != nil {
				return fmt.Errorf("failed to check playing slot: %w", err)
			}
			if playing > 0 {
				return apperr.ErrConcurrentModification.Withf("another entry is already playing")
			}
		}

		for _, v := range cs.NewVotes {
			if err := tx.Create(v).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperr.ErrAlreadyVoted
				}
				return fmt.Errorf("failed to create vote: %w", err)
			}
		}

		for _, h := range cs.History {
			if err := tx.Create(h).Error; err != nil {
				return fmt.Errorf("failed to create play history: %w", err)
			}
		}

		return nil
	})
}

func roomOf(cs *Changeset) uuid.UUID {
	if cs.Room != nil {
		return cs.Room.ID
	}
	if len(cs.UpdatedEntries) > 0 {
		return cs.UpdatedEntries[0].RoomID
	}
	if len(cs.NewEntries) > 0 {
		return cs.NewEntries[0].RoomID
	}
	return uuid.Nil
}

// History operations

func (db *DB) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.PlayHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var history []*models.PlayHistory
	if err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to list play history: %w", err)
	}
	return history, nil
}

// Playlist operations

func (db *DB) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	if err := db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (db *DB) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	var playlist models.Playlist
	if err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&playlist, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return &playlist, nil
}

func (db *DB) ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	var playlists []*models.Playlist
	if err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return playlists, nil
}

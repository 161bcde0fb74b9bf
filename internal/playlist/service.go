package playlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worship-room-service/internal/youtube"
	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/models"
)

const maxItems = 500

type Store interface {
	CreatePlaylist(ctx context.Context, playlist *models.Playlist) error
	GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error)
	ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error)
}

// VideoLookup resolves video metadata for items that arrive without it.
type VideoLookup interface {
	GetVideo(ctx context.Context, videoID string) (*youtube.Video, error)
}

type Service struct {
	store  Store
	videos VideoLookup
}

func NewService(store Store, videos VideoLookup) *Service {
	return &Service{store: store, videos: videos}
}

type ItemRequest struct {
	VideoID         string `json:"video_id" binding:"required"`
	VideoTitle      string `json:"video_title"`
	VideoThumbnail  string `json:"video_thumbnail"`
	DurationSeconds int    `json:"duration_seconds"`
}

type CreateRequest struct {
	Name  string        `json:"name" binding:"required"`
	Items []ItemRequest `json:"items"`
}

// Create stores a playlist owned by ownerID. Items keep the order they were
// given in.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (*models.Playlist, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.ErrInvalidInput.Withf("name is required")
	}
	if len(req.Items) > maxItems {
		return nil, apperr.ErrInvalidInput.Withf("a playlist holds at most %d items", maxItems)
	}

	now := time.Now()
	playlist := &models.Playlist{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   ownerID,
		Items:     make([]models.PlaylistItem, 0, len(req.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, item := range req.Items {
		resolved, err := s.resolve(ctx, item)
		if err != nil {
			return nil, err
		}
		playlist.Items = append(playlist.Items, models.PlaylistItem{
			ID:              uuid.New(),
			PlaylistID:      playlist.ID,
			VideoID:         resolved.VideoID,
			VideoTitle:      resolved.VideoTitle,
			VideoThumbnail:  resolved.VideoThumbnail,
			DurationSeconds: resolved.DurationSeconds,
			Position:        i + 1,
		})
	}

	if err := s.store.CreatePlaylist(ctx, playlist); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	return playlist, nil
}

func (s *Service) resolve(ctx context.Context, item ItemRequest) (ItemRequest, error) {
	item.VideoID = strings.TrimSpace(item.VideoID)
	if item.VideoID == "" {
		return item, apperr.ErrInvalidInput.Withf("every item needs a video_id")
	}
	if item.DurationSeconds < 0 {
		return item, apperr.ErrInvalidInput.Withf("duration_seconds must not be negative")
	}
	if s.videos == nil || (item.VideoTitle != "" && item.DurationSeconds > 0) {
		return item, nil
	}

	video, err := s.videos.GetVideo(ctx, item.VideoID)
	if errors.Is(err, youtube.ErrVideoNotFound) {
		return item, apperr.ErrInvalidInput.Withf("video %s does not exist", item.VideoID)
	}
	if err != nil {
		log.Printf("Warning: video lookup for %s failed: %v", item.VideoID, err)
		return item, nil
	}
	if item.VideoTitle == "" {
		item.VideoTitle = video.Title
	}
	if item.VideoThumbnail == "" {
		item.VideoThumbnail = video.Thumbnail
	}
	if item.DurationSeconds == 0 {
		item.DurationSeconds = video.DurationSeconds
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	return s.store.GetPlaylist(ctx, id)
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	return s.store.ListPlaylists(ctx, ownerID)
}

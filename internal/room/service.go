package room

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/worship-room-service/internal/youtube"
	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/models"
)

// VideoLookup resolves video metadata.
type VideoLookup interface {
	GetVideo(ctx context.Context, videoID string) (*youtube.Video, error)
}

// Service is what the HTTP and websocket layers call. It fills in video
// metadata before handing commands to the coordinator.
type Service struct {
	*Coordinator
	videos VideoLookup
}

func NewService(coord *Coordinator, videos VideoLookup) *Service {
	return &Service{
		Coordinator: coord,
		videos:      videos,
	}
}

// AddToQueue enqueues a video. Missing title, thumbnail or duration are
// looked up so the room's duration bounds can be enforced.
func (s *Service) AddToQueue(ctx context.Context, roomID, userID uuid.UUID, req EnqueueRequest) (*models.QueueEntry, error) {
	if s.videos != nil && req.VideoID != "" && (req.VideoTitle == "" || req.DurationSeconds == 0) {
		video, err := s.videos.GetVideo(ctx, req.VideoID)
		switch {
		case errors.Is(err, youtube.ErrVideoNotFound):
			return nil, apperr.ErrInvalidInput.Withf("video %s does not exist", req.VideoID)
		case err != nil:
			log.Printf("Warning: video lookup for %s failed: %v", req.VideoID, err)
		default:
			if !video.Embeddable {
				return nil, apperr.ErrInvalidInput.Withf("video %s cannot be embedded", req.VideoID)
			}
			if req.VideoTitle == "" {
				req.VideoTitle = video.Title
			}
			if req.VideoThumbnail == "" {
				req.VideoThumbnail = video.Thumbnail
			}
			if req.DurationSeconds == 0 {
				req.DurationSeconds = video.DurationSeconds
			}
		}
	}

	entry, err := s.Enqueue(ctx, roomID, userID, req)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

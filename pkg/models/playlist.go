package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Playlist struct {
	ID        uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name" gorm:"size:120;not null"`
	OwnerID   uuid.UUID      `json:"owner_id" gorm:"type:char(36);not null;index"`
	Items     []PlaylistItem `json:"items" gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Playlist) TableName() string { return "worship_playlists" }

type PlaylistItem struct {
	ID              uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	PlaylistID      uuid.UUID `json:"playlist_id" gorm:"type:char(36);not null;index"`
	VideoID         string    `json:"video_id" gorm:"size:32;not null"`
	VideoTitle      string    `json:"video_title" gorm:"size:255"`
	VideoThumbnail  string    `json:"video_thumbnail" gorm:"size:512"`
	DurationSeconds int       `json:"duration_seconds"`
	Position        int       `json:"position"`
}

func (PlaylistItem) TableName() string { return "worship_playlist_items" }

// SortItems orders items by position.
func (p *Playlist) SortItems() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		return p.Items[i].Position < p.Items[j].Position
	})
}

// ItemAt returns the i-th item in playlist order.
func (p *Playlist) ItemAt(i int) (*PlaylistItem, bool) {
	if i < 0 || i >= len(p.Items) {
		return nil, false
	}
	return &p.Items[i], true
}

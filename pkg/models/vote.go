package models

import (
	"time"

	"github.com/google/uuid"
)

type VoteType string

const (
	VoteUpvote VoteType = "UPVOTE"
	VoteSkip   VoteType = "SKIP"
)

func (t VoteType) Valid() bool {
	return t == VoteUpvote || t == VoteSkip
}

// Vote is unique per (entry, user, type): a user may hold one UPVOTE and one
// SKIP on the same entry, but never two of the same type.
type Vote struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	QueueEntryID uuid.UUID `json:"queue_entry_id" gorm:"type:char(36);not null;uniqueIndex:idx_vote_entry_user_type"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_vote_entry_user_type"`
	VoteType     VoteType  `json:"vote_type" gorm:"size:10;not null;uniqueIndex:idx_vote_entry_user_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Vote) TableName() string { return "worship_song_votes" }

func NewVote(entryID, userID uuid.UUID, voteType VoteType, now time.Time) *Vote {
	return &Vote{
		ID:           uuid.New(),
		QueueEntryID: entryID,
		UserID:       userID,
		VoteType:     voteType,
		CreatedAt:    now,
	}
}

type VoteTally struct {
	Upvotes int `json:"upvotes"`
	Skips   int `json:"skips"`
}

func CountVotes(votes []*Vote) VoteTally {
	var t VoteTally
	for _, v := range votes {
		switch v.VoteType {
		case VoteUpvote:
			t.Upvotes++
		case VoteSkip:
			t.Skips++
		}
	}
	return t
}

// SkipPercentage returns skips as a percentage of participants, 0 when there
// are no participants.
func (t VoteTally) SkipPercentage(participants int) float64 {
	return percentage(t.Skips, participants)
}

func (t VoteTally) UpvotePercentage(participants int) float64 {
	return percentage(t.Upvotes, participants)
}

// ReachesSkipThreshold reports whether skips/participants >= threshold.
func (t VoteTally) ReachesSkipThreshold(participants int, threshold float64) bool {
	if participants <= 0 || t.Skips == 0 {
		return false
	}
	return float64(t.Skips)/float64(participants) >= threshold
}

func percentage(n, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return float64(n) * 100.0 / float64(total)
}

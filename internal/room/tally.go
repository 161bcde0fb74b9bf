package room

import (
	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/models"
)

const (
	reasonVote      = "vote"
	reasonManual    = "manual"
	reasonStopped   = "stopped"
	reasonClosed    = "room_closed"
	reasonRemoved   = "removed"
	reasonCompleted = ""
)

func (s *roomState) tally(entryID uuid.UUID) models.VoteTally {
	return models.CountVotes(s.votes[entryID])
}

func (s *roomState) skipThreshold() float64 {
	if t := s.settings.SkipThreshold; t > 0 && t <= 1 {
		return t
	}
	return models.DefaultSkipThreshold
}

func (s *roomState) findVote(entryID, userID uuid.UUID, voteType models.VoteType) *models.Vote {
	for _, v := range s.votes[entryID] {
		if v.UserID == userID && v.VoteType == voteType {
			return v
		}
	}
	return nil
}

// evaluateSkip skips the playing entry once its SKIP votes reach the
// threshold share of active participants. Votes from people who have since
// left still count; only the denominator shrinks.
func (s *roomState) evaluateSkip() (bool, error) {
	cur := s.current()
	if cur == nil {
		return false, nil
	}
	if !s.tally(cur.ID).ReachesSkipThreshold(s.activeCount(), s.skipThreshold()) {
		return false, nil
	}
	if err := s.finishCurrent(models.OutcomeSkipped, reasonVote); err != nil {
		return false, err
	}
	return true, s.advance()
}

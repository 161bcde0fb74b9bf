package room

import (
	"context"

	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/models"
)

type VoteResult struct {
	Tally   models.VoteTally `json:"tally"`
	Active  int              `json:"active_participants"`
	Skipped bool             `json:"skipped"`
}

// CastVote records a vote. SKIP votes only count against the playing entry
// and are checked against the skip threshold in the same command.
func (c *Coordinator) CastVote(ctx context.Context, roomID, userID, entryID uuid.UUID, voteType models.VoteType) (*VoteResult, error) {
	if !voteType.Valid() {
		return nil, apperr.ErrInvalidInput.Withf("unknown vote type %q", voteType)
	}

	var result VoteResult
	err := c.do(ctx, roomID, "vote", func(s *roomState) error {
		if err := s.requireActive(); err != nil {
			return err
		}
		p, err := s.member(userID)
		if err != nil {
			return err
		}
		e, err := s.entry(entryID)
		if err != nil {
			return err
		}
		if voteType == models.VoteSkip && !e.IsPlaying() {
			return apperr.ErrInvalidStateTransition.Withf("skip votes only apply to the playing song")
		}
		if s.findVote(entryID, userID, voteType) != nil {
			return apperr.ErrAlreadyVoted
		}

		s.addVote(models.NewVote(entryID, userID, voteType, s.now))
		p.Touch(s.now)
		s.markParticipant(p)

		tally := s.tally(entryID)
		active := s.activeCount()
		s.emit(events.EventTypeSongVoted, userID, events.SongVotedPayload{
			EntryID:  entryID.String(),
			VoteType: string(voteType),
			Upvotes:  tally.Upvotes,
			Skips:    tally.Skips,
			Active:   active,
		})

		skipped := false
		if voteType == models.VoteSkip {
			if skipped, err = s.evaluateSkip(); err != nil {
				return err
			}
		}
		result = VoteResult{Tally: tally, Active: active, Skipped: skipped}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Coordinator) RetractVote(ctx context.Context, roomID, userID, entryID uuid.UUID, voteType models.VoteType) error {
	if !voteType.Valid() {
		return apperr.ErrInvalidInput.Withf("unknown vote type %q", voteType)
	}
	return c.do(ctx, roomID, "retract_vote", func(s *roomState) error {
		if _, err := s.member(userID); err != nil {
			return err
		}
		if _, err := s.entry(entryID); err != nil {
			return err
		}
		v := s.findVote(entryID, userID, voteType)
		if v == nil {
			return apperr.ErrVoteNotFound
		}
		s.removeVote(v)

		tally := s.tally(entryID)
		s.emit(events.EventTypeVoteRetracted, userID, events.SongVotedPayload{
			EntryID:  entryID.String(),
			VoteType: string(voteType),
			Upvotes:  tally.Upvotes,
			Skips:    tally.Skips,
			Active:   s.activeCount(),
		})
		return nil
	})
}

// Package apperr defines the user-facing errors returned by the room service.
//
// Every error carries a stable code and the HTTP status handlers should answer
// with. errors.Is compares codes, so a value returned by Wrap or Withf still
// matches the predefined error it was derived from.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured application error.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e wrapping err.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// New creates a new Error.
func New(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

const (
	CodeInternal               = "INTERNAL_ERROR"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeRoomNotFound           = "ROOM_NOT_FOUND"
	CodeRoomInactive           = "ROOM_INACTIVE"
	CodeRoomFull               = "ROOM_FULL"
	CodeAlreadyJoined          = "ALREADY_JOINED"
	CodeNotParticipant         = "NOT_A_PARTICIPANT"
	CodeNotPermitted           = "NOT_PERMITTED"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeQueueFull              = "QUEUE_FULL"
	CodeUserSongLimit          = "USER_SONG_LIMIT"
	CodeDuplicateSong          = "DUPLICATE_SONG"
	CodeSongCooldownActive     = "SONG_COOLDOWN_ACTIVE"
	CodeDurationOutOfBounds    = "DURATION_OUT_OF_BOUNDS"
	CodeVideoBanned            = "VIDEO_BANNED"
	CodeWaitlistDisabled       = "WAITLIST_DISABLED"
	CodeWaitlistFull           = "WAITLIST_FULL"
	CodeAlreadyVoted           = "ALREADY_VOTED"
	CodeVoteNotFound           = "VOTE_NOT_FOUND"
	CodeEntryNotFound          = "ENTRY_NOT_FOUND"
	CodePlaylistNotFound       = "PLAYLIST_NOT_FOUND"
	CodeChatThrottled          = "CHAT_THROTTLED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

var (
	ErrInternal     = New(CodeInternal, "Internal server error", http.StatusInternalServerError)
	ErrInvalidInput = New(CodeInvalidInput, "Invalid input", http.StatusBadRequest)
	ErrUnauthorized = New(CodeUnauthorized, "Unauthorized", http.StatusUnauthorized)
)

var (
	ErrRoomNotFound   = New(CodeRoomNotFound, "Room not found", http.StatusNotFound)
	ErrRoomInactive   = New(CodeRoomInactive, "Room is not active", http.StatusConflict)
	ErrRoomFull       = New(CodeRoomFull, "Room is full", http.StatusConflict)
	ErrAlreadyJoined  = New(CodeAlreadyJoined, "User already joined the room", http.StatusConflict)
	ErrNotParticipant = New(CodeNotParticipant, "User is not an active participant", http.StatusForbidden)
	ErrNotPermitted   = New(CodeNotPermitted, "Action not permitted", http.StatusForbidden)

	ErrInvalidStateTransition = New(CodeInvalidStateTransition, "Invalid state transition", http.StatusConflict)
	ErrConcurrentModification = New(CodeConcurrentModification, "Room state changed concurrently", http.StatusConflict)
)

var (
	ErrQueueFull           = New(CodeQueueFull, "Queue is full", http.StatusConflict)
	ErrUserSongLimit       = New(CodeUserSongLimit, "Too many songs queued by this user", http.StatusConflict)
	ErrDuplicateSong       = New(CodeDuplicateSong, "Song is already in the queue", http.StatusConflict)
	ErrSongCooldownActive  = New(CodeSongCooldownActive, "Song was played too recently", http.StatusConflict)
	ErrDurationOutOfBounds = New(CodeDurationOutOfBounds, "Song duration is out of bounds", http.StatusUnprocessableEntity)
	ErrVideoBanned         = New(CodeVideoBanned, "Video is banned in this room", http.StatusForbidden)
	ErrEntryNotFound       = New(CodeEntryNotFound, "Queue entry not found", http.StatusNotFound)
	ErrPlaylistNotFound    = New(CodePlaylistNotFound, "Playlist not found", http.StatusNotFound)
)

var (
	ErrWaitlistDisabled = New(CodeWaitlistDisabled, "Waitlist is disabled", http.StatusConflict)
	ErrWaitlistFull     = New(CodeWaitlistFull, "Waitlist is full", http.StatusConflict)
	ErrAlreadyVoted     = New(CodeAlreadyVoted, "Vote already cast", http.StatusConflict)
	ErrVoteNotFound     = New(CodeVoteNotFound, "Vote not found", http.StatusNotFound)
	ErrChatThrottled    = New(CodeChatThrottled, "Slow mode is on, wait before sending again", http.StatusTooManyRequests)
)

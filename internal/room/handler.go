package room

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/httputil"
	"github.com/worship-room-service/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("", h.createRoom)
		rooms.GET("", h.listRooms)
		rooms.GET("/:id", h.getRoom)
		rooms.GET("/:id/state", h.getState)
		rooms.POST("/:id/activate", h.activateRoom)
		rooms.POST("/:id/close", h.closeRoom)
		rooms.PATCH("/:id/settings", h.updateSettings)
		rooms.GET("/:id/history", h.getHistory)

		rooms.POST("/:id/join", h.join)
		rooms.POST("/:id/leave", h.leave)
		rooms.POST("/:id/heartbeat", h.heartbeat)
		rooms.POST("/:id/waitlist", h.joinWaitlist)
		rooms.DELETE("/:id/waitlist", h.leaveWaitlist)
		rooms.POST("/:id/step-down", h.stepDown)
		rooms.POST("/:id/participants/:userId/promote", h.promote)
		rooms.PUT("/:id/participants/:userId/role", h.setRole)

		rooms.GET("/:id/queue", h.getQueue)
		rooms.POST("/:id/queue", h.addToQueue)
		rooms.PATCH("/:id/queue/:entryId", h.editEntry)
		rooms.DELETE("/:id/queue/:entryId", h.removeEntry)
		rooms.POST("/:id/queue/:entryId/move", h.moveEntry)
		rooms.POST("/:id/queue/:entryId/approve", h.approveEntry)
		rooms.POST("/:id/queue/:entryId/votes", h.vote)
		rooms.DELETE("/:id/queue/:entryId/votes/:type", h.retractVote)

		rooms.GET("/:id/playback", h.getPosition)
		rooms.POST("/:id/playback/:action", h.playback)
		rooms.PUT("/:id/playlist", h.attachPlaylist)
		rooms.DELETE("/:id/playlist", h.detachPlaylist)
		rooms.POST("/:id/chat", h.chat)
	}
}

// caller resolves the room id path parameter and the authenticated user.
func caller(c *gin.Context) (roomID, userID uuid.UUID, ok bool) {
	if roomID, ok = httputil.ParamUUID(c, "id"); !ok {
		return
	}
	userID, ok = httputil.UserID(c)
	return
}

func (h *Handler) createRoom(c *gin.Context) {
	userID, ok := httputil.UserID(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), userID, req)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handler) listRooms(c *gin.Context) {
	filter := database.RoomFilter{
		Type:       models.RoomType(c.Query("type")),
		ActiveOnly: c.DefaultQuery("active", "true") == "true",
		PublicOnly: true,
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rooms, err := h.service.ListRooms(c.Request.Context(), filter)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) getRoom(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	snap, err := h.service.CachedSnapshot(c.Request.Context(), roomID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getState(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(c.Request.Context(), roomID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *Handler) activateRoom(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	if err := h.service.ActivateRoom(c.Request.Context(), roomID, userID); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) closeRoom(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	if err := h.service.CloseRoom(c.Request.Context(), roomID, userID); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) updateSettings(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	var req SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	settings, err := h.service.UpdateSettings(c.Request.Context(), roomID, userID, req)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (h *Handler) getHistory(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history, err := h.service.History(c.Request.Context(), roomID, limit)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) join(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	participant, err := h.service.Join(c.Request.Context(), roomID, userID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, participant)
}

// simple runs a command that takes only the room and the caller.
func (h *Handler) simple(c *gin.Context, fn func(c *gin.Context, roomID, userID uuid.UUID) error) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	if err := fn(c, roomID, userID); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) leave(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.Leave(c.Request.Context(), roomID, userID)
	})
}

func (h *Handler) heartbeat(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.Heartbeat(c.Request.Context(), roomID, userID)
	})
}

func (h *Handler) joinWaitlist(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.JoinWaitlist(c.Request.Context(), roomID, userID)
	})
}

func (h *Handler) leaveWaitlist(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.LeaveWaitlist(c.Request.Context(), roomID, userID)
	})
}

func (h *Handler) stepDown(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.StepDown(c.Request.Context(), roomID, userID)
	})
}

func (h *Handler) promote(c *gin.Context) {
	targetID, ok := httputil.ParamUUID(c, "userId")
	if !ok {
		return
	}
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.PromoteToLeader(c.Request.Context(), roomID, userID, targetID)
	})
}

type SetRoleRequest struct {
	Role models.ParticipantRole `json:"role" binding:"required"`
}

func (h *Handler) setRole(c *gin.Context) {
	targetID, ok := httputil.ParamUUID(c, "userId")
	if !ok {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.SetRole(c.Request.Context(), roomID, userID, targetID, req.Role)
	})
}

func (h *Handler) getQueue(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	queue, err := h.service.Queue(c.Request.Context(), roomID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue": queue})
}

func (h *Handler) addToQueue(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	entry, err := h.service.AddToQueue(c.Request.Context(), roomID, userID, req)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) editEntry(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	entryID, ok := httputil.ParamUUID(c, "entryId")
	if !ok {
		return
	}
	var req EntryUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	entry, err := h.service.EditEntry(c.Request.Context(), roomID, userID, entryID, req)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// entryCommand runs a command against the :entryId path parameter.
func (h *Handler) entryCommand(c *gin.Context, fn func(c *gin.Context, roomID, userID, entryID uuid.UUID) error) {
	entryID, ok := httputil.ParamUUID(c, "entryId")
	if !ok {
		return
	}
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return fn(c, roomID, userID, entryID)
	})
}

func (h *Handler) removeEntry(c *gin.Context) {
	h.entryCommand(c, func(c *gin.Context, roomID, userID, entryID uuid.UUID) error {
		return h.service.RemoveEntry(c.Request.Context(), roomID, userID, entryID)
	})
}

type MoveRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (h *Handler) moveEntry(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	h.entryCommand(c, func(c *gin.Context, roomID, userID, entryID uuid.UUID) error {
		return h.service.MoveEntry(c.Request.Context(), roomID, userID, entryID, *req.Index)
	})
}

func (h *Handler) approveEntry(c *gin.Context) {
	h.entryCommand(c, func(c *gin.Context, roomID, userID, entryID uuid.UUID) error {
		return h.service.ApproveEntry(c.Request.Context(), roomID, userID, entryID)
	})
}

type VoteRequest struct {
	VoteType models.VoteType `json:"vote_type" binding:"required,oneof=UPVOTE SKIP"`
}

func (h *Handler) vote(c *gin.Context) {
	roomID, userID, ok := caller(c)
	if !ok {
		return
	}
	entryID, ok := httputil.ParamUUID(c, "entryId")
	if !ok {
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	result, err := h.service.CastVote(c.Request.Context(), roomID, userID, entryID, req.VoteType)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) retractVote(c *gin.Context) {
	voteType := models.VoteType(c.Param("type"))
	h.entryCommand(c, func(c *gin.Context, roomID, userID, entryID uuid.UUID) error {
		return h.service.RetractVote(c.Request.Context(), roomID, userID, entryID, voteType)
	})
}

func (h *Handler) getPosition(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	position, at, err := h.service.Position(c.Request.Context(), roomID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": position, "server_time": at})
}

type PlaybackRequest struct {
	Position *float64  `json:"position"`
	EntryID  uuid.UUID `json:"entry_id"`
}

func (h *Handler) playback(c *gin.Context) {
	var req PlaybackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
	}

	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		ctx := c.Request.Context()
		switch c.Param("action") {
		case "play":
			return h.service.Play(ctx, roomID, userID)
		case "pause":
			return h.service.Pause(ctx, roomID, userID, req.Position)
		case "resume":
			return h.service.Resume(ctx, roomID, userID)
		case "seek":
			if req.Position == nil {
				return apperr.ErrInvalidInput.Withf("position is required")
			}
			return h.service.Seek(ctx, roomID, userID, *req.Position)
		case "skip":
			return h.service.Skip(ctx, roomID, userID)
		case "stop":
			return h.service.Stop(ctx, roomID, userID)
		case "complete":
			if req.EntryID == uuid.Nil {
				return apperr.ErrInvalidInput.Withf("entry_id is required")
			}
			return h.service.Complete(ctx, roomID, userID, req.EntryID)
		default:
			return apperr.ErrInvalidInput.Withf("unknown playback action %q", c.Param("action"))
		}
	})
}

type PlaylistRequest struct {
	PlaylistID uuid.UUID `json:"playlist_id" binding:"required"`
}

func (h *Handler) attachPlaylist(c *gin.Context) {
	var req PlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.AttachPlaylist(c.Request.Context(), roomID, userID, req.PlaylistID)
	})
}

func (h *Handler) detachPlaylist(c *gin.Context) {
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.DetachPlaylist(c.Request.Context(), roomID, userID)
	})
}

type ChatRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	h.simple(c, func(c *gin.Context, roomID, userID uuid.UUID) error {
		return h.service.Chat(c.Request.Context(), roomID, userID, req.Text)
	})
}

package playlist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/worship-room-service/pkg/httputil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	playlists := r.Group("/playlists")
	{
		playlists.POST("", h.create)
		playlists.GET("", h.list)
		playlists.GET("/:id", h.get)
	}
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := httputil.UserID(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	playlist, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, playlist)
}

// list returns the caller's own playlists.
func (h *Handler) list(c *gin.Context) {
	userID, ok := httputil.UserID(c)
	if !ok {
		return
	}
	playlists, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	playlist, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, playlist)
}

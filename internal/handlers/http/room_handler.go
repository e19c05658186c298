package http

import (
	"net/http"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/core/services"
	apperrors "roomcast/pkg/errors"
	"roomcast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the read-only room introspection API and token minting.
type RoomHandler struct {
	directory ports.RoomDirectory
	tokens    *services.RoomTokenService // nil when auth is disabled
}

func NewRoomHandler(directory ports.RoomDirectory, tokens *services.RoomTokenService) *RoomHandler {
	return &RoomHandler{
		directory: directory,
		tokens:    tokens,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	{
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:name", h.GetRoom)
	}

	// Token minting is unauthenticated on purpose: it is how a client obtains
	// its first credential. Deployment fronting decides who can reach it.
	router.POST("/api/v1/rooms/:name/token", h.MintToken)
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms := h.directory.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
	})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	name := c.Param("name")
	if err := validation.ValidateRoomName(name); err != nil {
		writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	room, exists := h.directory.Get(c.Request.Context(), domain.RoomName(name))
	if !exists {
		writeError(c, apperrors.NewNotFoundError("room"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room": room.Info(c.Request.Context()),
	})
}

func (h *RoomHandler) MintToken(c *gin.Context) {
	if h.tokens == nil {
		writeError(c, apperrors.NewNotFoundError("token endpoint"))
		return
	}

	name := c.Param("name")
	if err := validation.ValidateRoomName(name); err != nil {
		writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req struct {
		DisplayName string `json:"displayName" binding:"max=64"`
	}
	if err := c.BindJSON(&req); err != nil {
		writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	token, err := h.tokens.GenerateToken(domain.RoomName(name), req.DisplayName)
	if err != nil {
		writeError(c, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to sign token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
	})
}

func writeError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus, gin.H{
		"error": err.Message,
		"code":  err.Code,
	})
}

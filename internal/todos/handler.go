// Package todos implements the per-user to-do list.
package todos

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"multiactivity/internal/gate"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for todos
type Handler struct {
	repo   Repository
	logger *slog.Logger
}

// NewHandler creates a new todos handler
func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger.With("component", "todos")}
}

// RegisterRoutes mounts the todo routes on a group already behind gate.Require
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/todos")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
		g.PATCH("/:id/toggle", h.Toggle)
		g.DELETE("/:id", h.Delete)
	}
}

// List handles GET /api/todos
func (h *Handler) List(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	todos, err := h.repo.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list todos", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to retrieve todos"})
		return
	}

	c.JSON(http.StatusOK, TodoListResponse{Success: true, Data: todos})
}

// Create handles POST /api/todos
func (h *Handler) Create(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "title is required"})
		return
	}

	todo, err := h.repo.Create(c.Request.Context(), userID, strings.TrimSpace(req.Title))
	if err != nil {
		h.logger.Error("Failed to create todo", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to create todo"})
		return
	}

	c.JSON(http.StatusCreated, TodoResponse{Success: true, Message: "Todo created", Data: todo})
}

// Toggle handles PATCH /api/todos/:id/toggle
func (h *Handler) Toggle(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid todo ID"})
		return
	}

	todo, err := h.repo.Toggle(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err, "Failed to update todo")
		return
	}

	c.JSON(http.StatusOK, TodoResponse{Success: true, Data: todo})
}

// Delete handles DELETE /api/todos/:id
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid todo ID"})
		return
	}

	if err := h.repo.Delete(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to delete todo")
		return
	}

	c.JSON(http.StatusOK, TodoResponse{Success: true, Message: "Todo deleted"})
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrTodoNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Todo not found"})
		return
	}
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: msg})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: "Unauthorized: sign in required"})
}

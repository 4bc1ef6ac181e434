// Package notes implements markdown notes with sortable listings and a
// rendered preview.
package notes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"multiactivity/internal/database"
	"multiactivity/internal/gate"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for notes
type Handler struct {
	repo     Repository
	renderer *Renderer
	logger   *slog.Logger
}

// NewHandler creates a new notes handler
func NewHandler(repo Repository, renderer *Renderer, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, renderer: renderer, logger: logger.With("component", "notes")}
}

// RegisterRoutes mounts the note routes on a group already behind gate.Require
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/notes")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
		g.PUT("/:id", h.Update)
		g.DELETE("/:id", h.Delete)
		g.GET("/:id/preview", h.Preview)
	}
}

// List handles GET /api/notes?sort=title|created_at&order=asc|desc
func (h *Handler) List(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	sort := database.ParseSort(sortColumns, c.Query("sort"), c.Query("order"), "created_at")
	notes, err := h.repo.List(c.Request.Context(), userID, sort)
	if err != nil {
		h.logger.Error("Failed to list notes", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to retrieve notes"})
		return
	}

	c.JSON(http.StatusOK, NoteListResponse{Success: true, Data: notes})
}

// Create handles POST /api/notes
func (h *Handler) Create(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	req, ok := bindNote(c)
	if !ok {
		return
	}

	note, err := h.repo.Create(c.Request.Context(), userID, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err, "Failed to create note")
		return
	}

	c.JSON(http.StatusCreated, NoteResponse{Success: true, Message: "Note created", Data: note})
}

// Update handles PUT /api/notes/:id
func (h *Handler) Update(c *gin.Context) {
	userID, id, ok := h.target(c)
	if !ok {
		return
	}
	req, ok := bindNote(c)
	if !ok {
		return
	}

	note, err := h.repo.Update(c.Request.Context(), userID, id, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err, "Failed to update note")
		return
	}

	c.JSON(http.StatusOK, NoteResponse{Success: true, Message: "Note updated", Data: note})
}

// Delete handles DELETE /api/notes/:id
func (h *Handler) Delete(c *gin.Context) {
	userID, id, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to delete note")
		return
	}

	c.JSON(http.StatusOK, NoteResponse{Success: true, Message: "Note deleted"})
}

// Preview handles GET /api/notes/:id/preview
func (h *Handler) Preview(c *gin.Context) {
	userID, id, ok := h.target(c)
	if !ok {
		return
	}

	note, err := h.repo.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err, "Failed to load note")
		return
	}

	html, err := h.renderer.Render(note.Content)
	if err != nil {
		h.writeError(c, err, "Failed to render note")
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{Success: true, ID: note.ID, HTML: html})
}

// target resolves the signed-in user and the :id parameter
func (h *Handler) target(c *gin.Context) (uuid.UUID, int64, bool) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return uuid.Nil, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid note ID"})
		return uuid.Nil, 0, false
	}
	return userID, id, true
}

func bindNote(c *gin.Context) (NoteRequest, bool) {
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "title is required"})
		return req, false
	}
	req.Title = strings.TrimSpace(req.Title)
	return req, true
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Note not found"})
		return
	}
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: msg})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: "Unauthorized: sign in required"})
}

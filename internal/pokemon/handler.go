// Package pokemon implements Pokémon lookup through PokeAPI and the shared
// review board for each species.
package pokemon

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

// Handler handles HTTP requests for Pokémon and their reviews
type Handler struct {
	lookup Lookup
	repo   Repository
	logger *slog.Logger
}

// NewHandler creates a new pokemon handler
func NewHandler(lookup Lookup, repo Repository, logger *slog.Logger) *Handler {
	return &Handler{lookup: lookup, repo: repo, logger: logger.With("component", "pokemon")}
}

// RegisterRoutes mounts the Pokémon routes on a group already behind
// gate.Require
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	p := r.Group("/pokemon")
	{
		p.GET("/:name", h.Get)
		p.GET("/:name/reviews", h.ListReviews)
		p.POST("/:name/reviews", h.CreateReview)
	}

	reviews := r.Group("/pokemon-reviews")
	{
		reviews.PUT("/:id", h.UpdateReview)
		reviews.DELETE("/:id", h.DeleteReview)
	}
}

// Get handles GET /api/pokemon/:name
func (h *Handler) Get(c *gin.Context) {
	p, err := h.lookup.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err, "Failed to look up pokemon")
		return
	}
	c.JSON(http.StatusOK, PokemonResponse{Success: true, Data: p})
}

// ListReviews handles GET /api/pokemon/:name/reviews?sort=pokemon_name|created_at&order=asc|desc
func (h *Handler) ListReviews(c *gin.Context) {
	name, err := NormalizeName(c.Param("name"))
	if err != nil {
		h.writeError(c, err, "Invalid pokemon name")
		return
	}

	sort := database.ParseSort(sortColumns, c.Query("sort"), c.Query("order"), "created_at")
	reviews, err := h.repo.ListByPokemon(c.Request.Context(), name, sort)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve reviews")
		return
	}

	c.JSON(http.StatusOK, ReviewListResponse{Success: true, Data: reviews})
}

// CreateReview handles POST /api/pokemon/:name/reviews. The Pokémon must
// resolve through PokeAPI first.
func (h *Handler) CreateReview(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	req, ok := bindReview(c)
	if !ok {
		return
	}

	p, err := h.lookup.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err, "Failed to look up pokemon")
		return
	}

	review, err := h.repo.Create(c.Request.Context(), userID, p.Name, req.Comment, req.Rating)
	if err != nil {
		h.writeError(c, err, "Failed to create review")
		return
	}

	c.JSON(http.StatusCreated, ReviewResponse{Success: true, Message: "Review created", Data: review})
}

// UpdateReview handles PUT /api/pokemon-reviews/:id
func (h *Handler) UpdateReview(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}
	req, ok := bindReview(c)
	if !ok {
		return
	}

	review, err := h.repo.Update(c.Request.Context(), userID, id, req.Comment, req.Rating)
	if err != nil {
		h.writeError(c, err, "Failed to update review")
		return
	}

	c.JSON(http.StatusOK, ReviewResponse{Success: true, Message: "Review updated", Data: review})
}

// DeleteReview handles DELETE /api/pokemon-reviews/:id
func (h *Handler) DeleteReview(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to delete review")
		return
	}

	c.JSON(http.StatusOK, ReviewResponse{Success: true, Message: "Review deleted"})
}

func bindReview(c *gin.Context) (ReviewRequest, bool) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Comment) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "comment is required and rating must be between 1 and 5",
			Code:    "INVALID_REQUEST",
		})
		return req, false
	}
	req.Comment = strings.TrimSpace(req.Comment)
	return req, true
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid pokemon name", Code: "INVALID_NAME"})
	case errors.Is(err, ErrPokemonNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Pokemon not found", Code: "POKEMON_NOT_FOUND"})
	case errors.Is(err, ErrReviewNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Review not found", Code: "NOT_FOUND"})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Success: false, Error: "Forbidden: you can only modify your own reviews", Code: "FORBIDDEN"})
	case errors.Is(err, ErrUpstream):
		h.logger.Warn(msg, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Success: false, Error: "PokeAPI is unavailable", Code: "UPSTREAM_UNAVAILABLE"})
	default:
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: msg})
	}
}

func target(c *gin.Context) (uuid.UUID, int64, bool) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return uuid.Nil, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid review ID", Code: "INVALID_ID"})
		return uuid.Nil, 0, false
	}
	return userID, id, true
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: "Unauthorized: sign in required", Code: "SIGNED_OUT"})
}

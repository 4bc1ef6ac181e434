// Package food implements the food log: dishes with optional photos stored in
// object storage, and rated reviews on each dish.
package food

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"multiactivity/internal/database"
	"multiactivity/internal/gate"
	"multiactivity/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PhotoPrefix is the storage prefix for food photos
const PhotoPrefix = "food-photos/"

const photoURLTTL = time.Hour

// Handler handles HTTP requests for foods and their reviews
type Handler struct {
	foods   FoodRepository
	reviews ReviewRepository
	storage storage.Service
	logger  *slog.Logger
}

// NewHandler creates a new food handler
func NewHandler(foods FoodRepository, reviews ReviewRepository, store storage.Service, logger *slog.Logger) *Handler {
	return &Handler{
		foods:   foods,
		reviews: reviews,
		storage: store,
		logger:  logger.With("component", "food"),
	}
}

// RegisterRoutes mounts the food routes on a group already behind gate.Require
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	foods := r.Group("/foods")
	{
		foods.GET("", h.List)
		foods.POST("", h.Create)
		foods.DELETE("/:id", h.Delete)
		foods.GET("/:id/reviews", h.ListReviews)
		foods.POST("/:id/reviews", h.CreateReview)
	}

	reviews := r.Group("/reviews")
	{
		reviews.PATCH("/:id", h.UpdateReview)
		reviews.DELETE("/:id", h.DeleteReview)
	}
}

// PurgeUser removes every photo uploaded by userID
func (h *Handler) PurgeUser(ctx context.Context, userID string) error {
	n, err := h.storage.DeletePrefix(ctx, userPrefix(userID))
	if err != nil {
		return fmt.Errorf("purge food photos: %w", err)
	}
	h.logger.Info("Purged food photos", "user_id", userID, "count", n)
	return nil
}

func userPrefix(userID string) string {
	return PhotoPrefix + userID + "/"
}

// List handles GET /api/foods?search=&sort=name|created_at&order=asc|desc
func (h *Handler) List(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	sort := database.ParseSort(sortColumns, c.Query("sort"), c.Query("order"), "created_at")
	foods, err := h.foods.List(c.Request.Context(), userID, c.Query("search"), sort)
	if err != nil {
		h.logger.Error("Failed to list foods", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to retrieve foods"})
		return
	}

	for i := range foods {
		h.attachImageURL(c.Request.Context(), &foods[i])
	}
	c.JSON(http.StatusOK, FoodListResponse{Success: true, Data: foods})
}

// Create handles POST /api/foods as multipart/form-data with fields name,
// description and an optional photo file
func (h *Handler) Create(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "name is required", Code: "INVALID_REQUEST"})
		return
	}
	description := strings.TrimSpace(c.PostForm("description"))

	var photoKey string
	if fh, err := c.FormFile("photo"); err == nil {
		if err := storage.ValidateFilename(fh.Filename); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error(), Code: "INVALID_FILENAME"})
			return
		}
		contentType := fh.Header.Get("Content-Type")
		if err := storage.ValidateImage(contentType, fh.Size); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error(), Code: "INVALID_PHOTO"})
			return
		}

		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Failed to read photo", Code: "INVALID_PHOTO"})
			return
		}
		defer f.Close()

		photoKey = userPrefix(userID.String()) + uuid.NewString() + "-" + fh.Filename
		if err := h.storage.PutObject(c.Request.Context(), photoKey, f, fh.Size, contentType); err != nil {
			h.logger.Error("Failed to upload food photo", "user_id", userID, "error", err)
			c.JSON(http.StatusBadGateway, ErrorResponse{Success: false, Error: "Failed to upload photo", Code: "UPLOAD_FAILED"})
			return
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid multipart form", Code: "INVALID_REQUEST"})
		return
	}

	food, err := h.foods.Create(c.Request.Context(), userID, name, description, photoKey)
	if err != nil {
		h.logger.Error("Failed to create food", "user_id", userID, "error", err)
		if photoKey != "" {
			h.removePhoto(photoKey)
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "Failed to create food"})
		return
	}

	h.attachImageURL(c.Request.Context(), food)
	c.JSON(http.StatusCreated, FoodResponse{Success: true, Message: "Food created", Data: food})
}

// Delete handles DELETE /api/foods/:id. The photo is removed as well.
func (h *Handler) Delete(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}

	food, err := h.foods.Delete(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err, "Failed to delete food")
		return
	}
	if food.PhotoKey != "" {
		h.removePhoto(food.PhotoKey)
	}

	c.JSON(http.StatusOK, FoodResponse{Success: true, Message: "Food deleted"})
}

// ListReviews handles GET /api/foods/:id/reviews
func (h *Handler) ListReviews(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}
	if _, err := h.foods.Get(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to load food")
		return
	}

	reviews, err := h.reviews.ListByFood(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve reviews")
		return
	}

	c.JSON(http.StatusOK, ReviewListResponse{Success: true, Data: reviews})
}

// CreateReview handles POST /api/foods/:id/reviews
func (h *Handler) CreateReview(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}

	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "content is required and rating must be between 1 and 5",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if _, err := h.foods.Get(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to load food")
		return
	}

	review, err := h.reviews.Create(c.Request.Context(), userID, id, strings.TrimSpace(req.Content), req.Rating)
	if err != nil {
		h.writeError(c, err, "Failed to create review")
		return
	}

	c.JSON(http.StatusCreated, ReviewResponse{Success: true, Message: "Review created", Data: review})
}

// UpdateReview handles PATCH /api/reviews/:id
func (h *Handler) UpdateReview(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "content is required", Code: "INVALID_REQUEST"})
		return
	}

	review, err := h.reviews.UpdateContent(c.Request.Context(), userID, id, strings.TrimSpace(req.Content))
	if err != nil {
		h.writeError(c, err, "Failed to update review")
		return
	}

	c.JSON(http.StatusOK, ReviewResponse{Success: true, Message: "Review updated", Data: review})
}

// DeleteReview handles DELETE /api/reviews/:id
func (h *Handler) DeleteReview(c *gin.Context) {
	userID, id, ok := target(c)
	if !ok {
		return
	}

	if err := h.reviews.Delete(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err, "Failed to delete review")
		return
	}

	c.JSON(http.StatusOK, ReviewResponse{Success: true, Message: "Review deleted"})
}

func (h *Handler) attachImageURL(ctx context.Context, f *Food) {
	if f.PhotoKey == "" {
		return
	}
	url, err := h.storage.PresignGet(ctx, f.PhotoKey, photoURLTTL)
	if err != nil {
		h.logger.Warn("Failed to presign food photo", "key", f.PhotoKey, "error", err)
		return
	}
	f.ImageURL = url
}

// removePhoto deletes key on a detached context so a cancelled request does
// not leave the object behind
func (h *Handler) removePhoto(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.storage.DeleteObject(ctx, key); err != nil {
		h.logger.Error("Failed to delete food photo", "key", key, "error", err)
	}
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrFoodNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Food not found", Code: "NOT_FOUND"})
	case errors.Is(err, ErrReviewNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Review not found", Code: "NOT_FOUND"})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Success: false, Error: "Forbidden: you can only modify your own reviews", Code: "FORBIDDEN"})
	default:
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: msg})
	}
}

// target resolves the signed-in user and the :id parameter
func target(c *gin.Context) (uuid.UUID, int64, bool) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return uuid.Nil, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid ID", Code: "INVALID_ID"})
		return uuid.Nil, 0, false
	}
	return userID, id, true
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: "Unauthorized: sign in required", Code: "SIGNED_OUT"})
}

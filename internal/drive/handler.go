package drive

import (
	"errors"
	"net/http"

	"multiactivity/internal/gate"
	"multiactivity/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for drive operations
type Handler struct {
	service *Service
}

// NewHandler creates a new drive handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the drive routes on a group already behind gate.Require
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/drive")
	{
		g.GET("", h.List)
		g.POST("", h.Upload)
		g.DELETE("/:name", h.Delete)
		g.POST("/:name/rename", h.Rename)
	}
}

// List handles GET /api/drive?search=&sort=name|date
func (h *Handler) List(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	photos, err := h.service.List(c.Request.Context(), userID.String(), c.Query("search"), c.DefaultQuery("sort", "name"))
	if err != nil {
		h.writeError(c, err, "Failed to list photos")
		return
	}

	c.JSON(http.StatusOK, PhotoListResponse{Success: true, Data: photos})
}

// Upload handles POST /api/drive as multipart/form-data with a single file
// field
func (h *Handler) Upload(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "A file field is required",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Failed to read file", Code: "INVALID_REQUEST"})
		return
	}
	defer f.Close()

	photo, err := h.service.Upload(c.Request.Context(), userID.String(), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		h.writeError(c, err, "Failed to upload photo")
		return
	}

	c.JSON(http.StatusCreated, PhotoResponse{Success: true, Message: "Photo uploaded", Data: photo})
}

// Delete handles DELETE /api/drive/:name
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID.String(), c.Param("name")); err != nil {
		h.writeError(c, err, "Failed to delete photo")
		return
	}

	c.JSON(http.StatusOK, PhotoResponse{Success: true, Message: "Photo deleted"})
}

// Rename handles POST /api/drive/:name/rename
func (h *Handler) Rename(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	if err := h.service.Rename(c.Request.Context(), userID.String(), c.Param("name"), req.NewName); err != nil {
		h.writeError(c, err, "Failed to rename photo")
		return
	}

	c.JSON(http.StatusOK, PhotoResponse{Success: true, Message: "Photo renamed"})
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidPhoto):
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "Invalid photo", Code: "INVALID_PHOTO", Details: err.Error()})
	case errors.Is(err, ErrPhotoNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: "Photo not found", Code: "NOT_FOUND"})
	case errors.Is(err, ErrPhotoExists):
		c.JSON(http.StatusConflict, ErrorResponse{Success: false, Error: err.Error(), Code: "ALREADY_EXISTS"})
	default:
		h.service.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Success: false, Error: msg, Code: "STORAGE_UNAVAILABLE"})
	}
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Success: false, Error: "Unauthorized: sign in required", Code: "SIGNED_OUT"})
}

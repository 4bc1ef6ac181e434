package food

import (
	"time"

	"github.com/google/uuid"
)

// Food is a dish a user has recorded, optionally with a photo
type Food struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoKey    string    `json:"-"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Review is a rated comment on a Food
type Review struct {
	ID        int64     `json:"id"`
	FoodID    int64     `json:"food_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateReviewRequest is the body of POST /api/foods/:id/reviews
type CreateReviewRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
}

// UpdateReviewRequest is the body of PATCH /api/reviews/:id
type UpdateReviewRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

// FoodResponse is a standard response wrapper
type FoodResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *Food  `json:"data,omitempty"`
}

// FoodListResponse wraps a list of foods
type FoodListResponse struct {
	Success bool   `json:"success"`
	Data    []Food `json:"data"`
}

// ReviewResponse is a standard response wrapper
type ReviewResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Data    *Review `json:"data,omitempty"`
}

// ReviewListResponse wraps a list of reviews
type ReviewListResponse struct {
	Success bool     `json:"success"`
	Data    []Review `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

package pokemon

import (
	"time"

	"github.com/google/uuid"
)

// Pokemon is the looked-up species
type Pokemon struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Review is a rated comment about a Pokémon
type Review struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	PokemonName string    `json:"pokemon_name"`
	Comment     string    `json:"comment"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReviewRequest is the body of POST /api/pokemon/:name/reviews and
// PUT /api/pokemon-reviews/:id
type ReviewRequest struct {
	Comment string `json:"comment" binding:"required,max=2000"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
}

// PokemonResponse wraps a lookup result
type PokemonResponse struct {
	Success bool     `json:"success"`
	Data    *Pokemon `json:"data,omitempty"`
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

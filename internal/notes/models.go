package notes

import (
	"time"

	"github.com/google/uuid"
)

// Note is a markdown note owned by one user
type Note struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteRequest is the body of POST and PUT /api/notes
type NoteRequest struct {
	Title   string `json:"title" binding:"required,max=300"`
	Content string `json:"content" binding:"max=100000"`
}

// NoteResponse is a standard response wrapper
type NoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *Note  `json:"data,omitempty"`
}

// NoteListResponse wraps a list of notes
type NoteListResponse struct {
	Success bool   `json:"success"`
	Data    []Note `json:"data"`
}

// PreviewResponse carries rendered markdown
type PreviewResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	HTML    string `json:"html"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

package todos

import (
	"time"

	"github.com/google/uuid"
)

// Todo is a single to-do item owned by one user
type Todo struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	IsComplete bool      `json:"is_complete"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTodoRequest is the body of POST /api/todos
type CreateTodoRequest struct {
	Title string `json:"title" binding:"required,max=500"`
}

// TodoResponse is a standard response wrapper
type TodoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *Todo  `json:"data,omitempty"`
}

// TodoListResponse wraps a list of todos
type TodoListResponse struct {
	Success bool   `json:"success"`
	Data    []Todo `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

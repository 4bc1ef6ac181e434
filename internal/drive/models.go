package drive

import "time"

// Photo is one object in a user's drive
type Photo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

// RenameRequest is the body of POST /api/drive/:name/rename
type RenameRequest struct {
	NewName string `json:"new_name"`
}

// PhotoResponse is a standard response wrapper
type PhotoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *Photo `json:"data,omitempty"`
}

// PhotoListResponse wraps a drive listing
type PhotoListResponse struct {
	Success bool    `json:"success"`
	Data    []Photo `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

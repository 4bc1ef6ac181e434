package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MaxFilenameLength = 255
	MaxImageSize      = 10 * 1024 * 1024 // 10MB
)

// allowedImageTypes is the upload whitelist for photos
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateFilename checks that filename is a single safe path segment with an
// extension
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(filename) > MaxFilenameLength {
		return fmt.Errorf("filename too long (max %d characters)", MaxFilenameLength)
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("filename contains invalid characters")
	}
	if strings.ContainsFunc(filename, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return fmt.Errorf("filename contains control characters")
	}
	if filepath.Ext(filename) == "" {
		return fmt.Errorf("filename must have an extension")
	}
	return nil
}

// ValidateImage checks the content type against the whitelist and the size
// against MaxImageSize
func ValidateImage(contentType string, size int64) error {
	if contentType == "" {
		return fmt.Errorf("content type cannot be empty")
	}
	if !allowedImageTypes[strings.ToLower(contentType)] {
		return fmt.Errorf("content type %s is not allowed", contentType)
	}
	if size <= 0 {
		return fmt.Errorf("file is empty")
	}
	if size > MaxImageSize {
		return fmt.Errorf("file too large (max %d bytes)", MaxImageSize)
	}
	return nil
}

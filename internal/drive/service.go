// Package drive implements a per-user photo drive on top of object storage.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"multiactivity/internal/database"
	"multiactivity/internal/storage"
)

// Prefix is the storage prefix for drive photos
const Prefix = "photos/"

// URLTTL is how long listed download URLs stay valid
const URLTTL = time.Hour

var (
	ErrPhotoNotFound = errors.New("photo not found")
	ErrPhotoExists   = errors.New("a photo with that name already exists")
	ErrInvalidPhoto  = errors.New("invalid photo")
)

// Service handles business logic for drive operations
type Service struct {
	storage storage.Service
	logger  *slog.Logger
}

// NewService creates a new drive service
func NewService(store storage.Service, logger *slog.Logger) *Service {
	return &Service{storage: store, logger: logger.With("component", "drive")}
}

func userPrefix(userID string) string {
	return Prefix + userID + "/"
}

func objectKey(userID, name string) string {
	return userPrefix(userID) + name
}

// List returns up to database.PageSize photos whose name contains search,
// case-insensitively. sortBy "date" orders newest first; anything else
// orders by name.
func (s *Service) List(ctx context.Context, userID, search, sortBy string) ([]Photo, error) {
	prefix := userPrefix(userID)
	objects, err := s.storage.ListObjects(ctx, prefix, database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}

	search = strings.ToLower(strings.TrimSpace(search))
	photos := make([]Photo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(name), search) {
			continue
		}

		url, err := s.storage.PresignGet(ctx, obj.Key, URLTTL)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", name, err)
		}
		photos = append(photos, Photo{Name: name, Size: obj.Size, LastModified: obj.LastModified, URL: url})
	}

	if sortBy == "date" {
		sort.SliceStable(photos, func(i, j int) bool {
			return photos[i].LastModified.After(photos[j].LastModified)
		})
	} else {
		sort.SliceStable(photos, func(i, j int) bool {
			return photos[i].Name < photos[j].Name
		})
	}
	return photos, nil
}

// Upload stores body as name in the user's drive. Existing photos are not
// overwritten.
func (s *Service) Upload(ctx context.Context, userID, name, contentType string, size int64, body io.Reader) (*Photo, error) {
	if err := storage.ValidateFilename(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}
	if err := storage.ValidateImage(contentType, size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}

	key := objectKey(userID, name)
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrPhotoExists
	}

	if err := s.storage.PutObject(ctx, key, body, size, contentType); err != nil {
		return nil, err
	}

	url, err := s.storage.PresignGet(ctx, key, URLTTL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Photo uploaded", "user_id", userID, "name", name, "size", size)
	return &Photo{Name: name, Size: size, LastModified: time.Now(), URL: url}, nil
}

// Delete removes name from the user's drive
func (s *Service) Delete(ctx context.Context, userID, name string) error {
	if err := storage.ValidateFilename(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}

	key := objectKey(userID, name)
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPhotoNotFound
	}
	return s.storage.DeleteObject(ctx, key)
}

// Rename copies oldName to newName and then deletes oldName. A blank or
// unchanged newName is a no-op.
func (s *Service) Rename(ctx context.Context, userID, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" || newName == oldName {
		return nil
	}
	if err := storage.ValidateFilename(oldName); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}
	if err := storage.ValidateFilename(newName); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}

	src, dst := objectKey(userID, oldName), objectKey(userID, newName)

	exists, err := s.storage.Exists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		return ErrPhotoExists
	}

	if err := s.storage.CopyObject(ctx, src, dst); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrPhotoNotFound
		}
		return err
	}
	if err := s.storage.DeleteObject(ctx, src); err != nil {
		// both copies exist now; the caller sees the failure and can retry
		return fmt.Errorf("remove %s after copy: %w", oldName, err)
	}

	s.logger.Info("Photo renamed", "user_id", userID, "from", oldName, "to", newName)
	return nil
}

// PurgeUser removes the user's whole drive
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	n, err := s.storage.DeletePrefix(ctx, userPrefix(userID))
	if err != nil {
		return fmt.Errorf("purge drive: %w", err)
	}
	s.logger.Info("Purged drive", "user_id", userID, "count", n)
	return nil
}

package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"multiactivity/internal/session"
)

// ErrNotProcessed is returned by GetMetadata for unknown message ids
var ErrNotProcessed = errors.New("message not processed")

// IdempotencyStore handles deduplication of email events
type IdempotencyStore struct {
	store  session.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(store session.Store, logger *slog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		store:  store,
		ttl:    24 * time.Hour,
		logger: logger,
	}
}

func (s *IdempotencyStore) buildKey(messageID string) string {
	return "email:sent:" + messageID
}

// IsProcessed checks if an email event has already been processed
func (s *IdempotencyStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	exists, err := s.store.Exists(ctx, s.buildKey(messageID))
	if err != nil {
		return false, fmt.Errorf("failed to check if message is processed: %w", err)
	}
	return exists, nil
}

// MarkAsProcessed marks an email event as processed.
// Returns false if another consumer marked it first.
func (s *IdempotencyStore) MarkAsProcessed(ctx context.Context, event EmailEvent) (bool, error) {
	metadata := EmailMetadata{
		SentAt:    time.Now(),
		Recipient: event.Recipient,
		EventType: event.EventType,
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	success, err := s.store.SetNX(ctx, s.buildKey(event.MessageID), string(metadataJSON), s.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processed: %w", err)
	}

	if !success {
		s.logger.Warn("Email already processed (duplicate detected)",
			"messageID", event.MessageID,
			"type", event.EventType)
	}
	return success, nil
}

// GetMetadata retrieves the metadata for a processed email
func (s *IdempotencyStore) GetMetadata(ctx context.Context, messageID string) (*EmailMetadata, error) {
	data, err := s.store.Get(ctx, s.buildKey(messageID))
	if errors.Is(err, session.ErrKeyNotFound) {
		return nil, ErrNotProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var metadata EmailMetadata
	if err := json.Unmarshal([]byte(data), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &metadata, nil
}

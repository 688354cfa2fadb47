package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles database operations for chat messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a message
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	var metadata []byte
	if m.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("failed to encode message metadata: %w", err)
		}
	}

	query := `
		INSERT INTO messages (id, couple_id, sender_id, type, content, metadata, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, m.ID, m.CoupleID, m.SenderID, m.Type, m.Content, metadata, m.IsRead, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByCouple returns messages newest first, optionally only those created before a cursor
func (r *MessageRepository) ListByCouple(ctx context.Context, coupleID string, before *time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, couple_id, sender_id, type, content, metadata, is_read, created_at
		FROM messages
		WHERE couple_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, coupleID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.CoupleID, &m.SenderID, &m.Type, &m.Content, &metadata, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(metadata) > 0 {
			m.Metadata = &models.MessageMetadata{}
			if err := json.Unmarshal(metadata, m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode message metadata: %w", err)
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// MarkRead flips is_read on messages in a couple that readerID did not send
func (r *MessageRepository) MarkRead(ctx context.Context, coupleID, readerID string, ids []string) (int64, error) {
	query := `
		UPDATE messages SET is_read = TRUE
		WHERE couple_id = $1 AND sender_id <> $2 AND id = ANY($3::uuid[]) AND NOT is_read
	`
	result, err := r.db.Exec(ctx, query, coupleID, readerID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.RowsAffected(), nil
}

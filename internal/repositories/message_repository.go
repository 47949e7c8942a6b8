package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/models"
)

const insertMessageQuery = `INSERT INTO messages (session_id, sender_id, text, role) VALUES ($1, $2, $3, $4) RETURNING id, session_id, sender_id, text, role, created_at`

// MessageRepository defines interactions for session messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, sessionID int, senderID int, text string, role string) (models.Message, error)
	CreateAnalyzedMessage(ctx context.Context, sessionID int, senderID int, text string, role string, result analysis.Result) (models.Message, error)
	RecentUserTexts(ctx context.Context, sessionID int, limit int) ([]string, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message in a session.
func (r *MessageRepo) CreateMessage(ctx context.Context, sessionID int, senderID int, text string, role string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, insertMessageQuery, sessionID, senderID, text, role).
		StructScan(&msg)
	return msg, err
}

// CreateAnalyzedMessage stores a message and its analysis atomically.
func (r *MessageRepo) CreateAnalyzedMessage(ctx context.Context, sessionID int, senderID int, text string, role string, result analysis.Result) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx, insertMessageQuery, sessionID, senderID, text, role).StructScan(&msg); err != nil {
		return models.Message{}, err
	}
	if _, err = insertAnalysis(ctx, tx, msg.ID, result); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// RecentUserTexts returns the texts of the last limit user-authored
// messages of a session, oldest first.
func (r *MessageRepo) RecentUserTexts(ctx context.Context, sessionID int, limit int) ([]string, error) {
	query := `SELECT text FROM (
            SELECT id, text FROM messages
            WHERE session_id=$1 AND role=$2
            ORDER BY created_at DESC, id DESC
            LIMIT $3
        ) recent
        ORDER BY id ASC`
	texts := []string{}
	err := r.db.SelectContext(ctx, &texts, query, sessionID, models.RoleUser, limit)
	return texts, err
}

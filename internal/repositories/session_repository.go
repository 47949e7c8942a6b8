package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"tutor-chat-service/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository reads chat sessions. Lifecycle transitions are owned
// elsewhere; this service only consumes them.
type SessionRepository interface {
	GetChatSession(ctx context.Context, sessionID int) (models.ChatSession, error)
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// GetChatSession loads a session with its participants and status.
func (r *SessionRepo) GetChatSession(ctx context.Context, sessionID int) (models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.GetContext(ctx, &session, `SELECT id, student_id, tutor_id, status, created_at FROM chat_sessions WHERE id=$1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatSession{}, ErrSessionNotFound
	}
	return session, err
}

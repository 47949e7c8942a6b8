package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
            id SERIAL PRIMARY KEY,
            student_id INT NOT NULL,
            tutor_id INT,
            status TEXT NOT NULL DEFAULT 'activa' CHECK (status IN ('activa', 'pausada', 'cerrada')),
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            session_id INT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            text TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_session_role_idx ON messages (session_id, role, created_at);`,
		`CREATE TABLE IF NOT EXISTS analyses (
            id SERIAL PRIMARY KEY,
            message_id INT NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
            emotion TEXT NOT NULL,
            emotion_score DOUBLE PRECISION NOT NULL,
            emotion_distribution JSONB NOT NULL DEFAULT '[]',
            style TEXT NOT NULL,
            style_score DOUBLE PRECISION NOT NULL,
            style_distribution JSONB NOT NULL DEFAULT '[]',
            priority TEXT NOT NULL,
            alert BOOLEAN NOT NULL DEFAULT FALSE,
            alert_reason TEXT,
            context_risk TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Analysis is the persisted risk assessment of one message.
type Analysis struct {
	ID                  int            `db:"id" json:"id"`
	MessageID           int            `db:"message_id" json:"message_id"`
	Emotion             string         `db:"emotion" json:"emotion"`
	EmotionScore        float64        `db:"emotion_score" json:"emotion_score"`
	EmotionDistribution types.JSONText `db:"emotion_distribution" json:"emotion_distribution"`
	Style               string         `db:"style" json:"style"`
	StyleScore          float64        `db:"style_score" json:"style_score"`
	StyleDistribution   types.JSONText `db:"style_distribution" json:"style_distribution"`
	Priority            string         `db:"priority" json:"priority"`
	Alert               bool           `db:"alert" json:"alert"`
	AlertReason         sql.NullString `db:"alert_reason" json:"-"`
	ContextRisk         sql.NullString `db:"context_risk" json:"-"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/models"
)

var ErrAnalysisExists = errors.New("analysis already exists for message")

const uniqueViolation = "23505"

// insertAnalysis stores result for messageID through q and returns the new
// row id. A message has at most one analysis.
func insertAnalysis(ctx context.Context, q sqlx.ExtContext, messageID int, result analysis.Result) (int, error) {
	row, err := newAnalysisRow(messageID, result)
	if err != nil {
		return 0, err
	}

	rows, err := sqlx.NamedQueryContext(ctx, q, `INSERT INTO analyses
            (message_id, emotion, emotion_score, emotion_distribution, style, style_score, style_distribution, priority, alert, alert_reason, context_risk)
            VALUES (:message_id, :emotion, :emotion_score, :emotion_distribution, :style, :style_score, :style_distribution, :priority, :alert, :alert_reason, :context_risk)
            RETURNING id`, row)
	if err != nil {
		return 0, mapAnalysisErr(err)
	}
	defer rows.Close()

	var id int
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, mapAnalysisErr(err)
	}
	return id, nil
}

func newAnalysisRow(messageID int, result analysis.Result) (models.Analysis, error) {
	emotionDist, err := json.Marshal(result.EmotionDistribution)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshal emotion distribution: %w", err)
	}
	styleDist, err := json.Marshal(result.StyleDistribution)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshal style distribution: %w", err)
	}

	row := models.Analysis{
		MessageID:           messageID,
		Emotion:             result.Emotion,
		EmotionScore:        result.EmotionScore,
		EmotionDistribution: emotionDist,
		Style:               result.Style,
		StyleScore:          result.StyleScore,
		StyleDistribution:   styleDist,
		Priority:            string(result.Priority),
		Alert:               result.Alert,
	}
	if result.AlertReason != nil {
		row.AlertReason = sql.NullString{String: *result.AlertReason, Valid: true}
	}
	if result.ContextRisk != "" {
		row.ContextRisk = sql.NullString{String: string(result.ContextRisk), Valid: true}
	}
	return row, nil
}

func mapAnalysisErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAnalysisExists
	}
	return err
}

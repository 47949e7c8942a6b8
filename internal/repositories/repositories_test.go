package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestGetChatSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_sessions WHERE id=$1`)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "tutor_id", "status", "created_at"}).
			AddRow(7, 1, 2, models.SessionActive, now))

	session, err := repo.GetChatSession(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, session.StudentID)
	require.NotNil(t, session.TutorID)
	assert.Equal(t, 2, *session.TutorID)
	assert.Equal(t, []int{1, 2}, session.Participants())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChatSessionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery(`FROM chat_sessions`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "tutor_id", "status", "created_at"}))

	_, err := repo.GetChatSession(context.Background(), 99)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(3, 1, "hola", models.RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "sender_id", "text", "role", "created_at"}).
			AddRow(11, 3, 1, "hola", models.RoleUser, now))

	msg, err := repo.CreateMessage(context.Background(), 3, 1, "hola", models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 11, msg.ID)
	assert.Equal(t, "hola", msg.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentUserTexts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`SELECT text FROM`).
		WithArgs(3, models.RoleUser, analysis.ContextWindow).
		WillReturnRows(sqlmock.NewRows([]string{"text"}).AddRow("uno").AddRow("dos"))

	texts, err := repo.RecentUserTexts(context.Background(), 3, analysis.ContextWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{"uno", "dos"}, texts)
}

func TestCreateAnalyzedMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(3, 1, "me siento mal", models.RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "sender_id", "text", "role", "created_at"}).
			AddRow(11, 3, 1, "me siento mal", models.RoleUser, now))
	mock.ExpectQuery(`INSERT INTO analyses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	msg, err := repo.CreateAnalyzedMessage(context.Background(), 3, 1, "me siento mal", models.RoleUser, analysis.Result{
		Emotion:             "tristeza",
		EmotionScore:        85,
		EmotionDistribution: []analysis.Label{{Name: "tristeza", Score: 85}},
		Style:               "neutral",
		StyleScore:          40,
		Priority:            analysis.TierAlta,
		ContextRisk:         analysis.ContextAlto,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAnalyzedMessageRollsBackOnAnalysisFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "sender_id", "text", "role", "created_at"}).
			AddRow(77, 3, 1, "hola", models.RoleUser, time.Now()))
	mock.ExpectQuery(`INSERT INTO analyses`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	msg, err := repo.CreateAnalyzedMessage(context.Background(), 3, 1, "hola", models.RoleUser, analysis.Result{Priority: analysis.TierNormal})
	require.Error(t, err)
	assert.Zero(t, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAnalyzedMessageRollsBackOnMessageFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.CreateAnalyzedMessage(context.Background(), 3, 1, "hola", models.RoleUser, analysis.Result{Priority: analysis.TierNormal})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAnalysisRow(t *testing.T) {
	reason := "riesgo combinado"
	row, err := newAnalysisRow(11, analysis.Result{
		Emotion:             "tristeza",
		EmotionDistribution: []analysis.Label{{Name: "tristeza", Score: 85}},
		Priority:            analysis.TierCritica,
		Alert:               true,
		AlertReason:         &reason,
	})
	require.NoError(t, err)

	assert.Equal(t, 11, row.MessageID)
	assert.JSONEq(t, `[{"label":"tristeza","score":85}]`, row.EmotionDistribution.String())
	assert.JSONEq(t, `null`, row.StyleDistribution.String())
	assert.Equal(t, "crítica", row.Priority)
	assert.Equal(t, sql.NullString{String: reason, Valid: true}, row.AlertReason)
	assert.False(t, row.ContextRisk.Valid)
}

func TestCreateAnalyzedMessageDuplicateAnalysis(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "sender_id", "text", "role", "created_at"}).
			AddRow(11, 3, 1, "hola", models.RoleUser, time.Now()))
	mock.ExpectQuery(`INSERT INTO analyses`).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	_, err := repo.CreateAnalyzedMessage(context.Background(), 3, 1, "hola", models.RoleUser, analysis.Result{Priority: analysis.TierNormal})
	assert.ErrorIs(t, err, ErrAnalysisExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/models"
)

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) GetChatSession(ctx context.Context, sessionID int) (models.ChatSession, error) {
	args := m.Called(ctx, sessionID)
	var session models.ChatSession
	if val := args.Get(0); val != nil {
		session = val.(models.ChatSession)
	}
	return session, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, sessionID int, senderID int, text string, role string) (models.Message, error) {
	args := m.Called(ctx, sessionID, senderID, text, role)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateAnalyzedMessage(ctx context.Context, sessionID int, senderID int, text string, role string, result analysis.Result) (models.Message, error) {
	args := m.Called(ctx, sessionID, senderID, text, role, result)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) RecentUserTexts(ctx context.Context, sessionID int, limit int) ([]string, error) {
	args := m.Called(ctx, sessionID, limit)
	var texts []string
	if val := args.Get(0); val != nil {
		texts = val.([]string)
	}
	return texts, args.Error(1)
}

type AnalyzerMock struct {
	mock.Mock
}

func (m *AnalyzerMock) Analyze(ctx context.Context, text string, history []string) (analysis.Result, error) {
	args := m.Called(ctx, text, history)
	var result analysis.Result
	if val := args.Get(0); val != nil {
		result = val.(analysis.Result)
	}
	return result, args.Error(1)
}

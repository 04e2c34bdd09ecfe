package storage

import (
	"context"
	"errors"

	"github.com/xaenox/reviewai/internal/models"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	ConversationStorage
	AnalysisStorage
}

type ConversationStorage interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	// GetConversation returns ErrNotFound when id does not exist or belongs
	// to another user.
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)
	LatestConversationForASIN(ctx context.Context, userID, asin string) (*models.Conversation, error)
	LatestConversation(ctx context.Context, userID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

type AnalysisStorage interface {
	CreateAnalysis(ctx context.Context, a *models.ProductAnalysis) error
	LatestAnalysis(ctx context.Context, userID, asin string) (*models.ProductAnalysis, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.ProductAnalysis, error)
}

// Package chat answers product questions with a single completion and
// re-emits the answer as a fragment stream.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/analysis"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/storage"
)

// GeneralChatTitle names conversations that are not bound to a product.
const GeneralChatTitle = "General Chat"

var (
	ErrNoMessages = errors.New("messages are required")
	// ErrCompletion wraps any failure of the completion call.
	ErrCompletion = errors.New("the assistant is unavailable right now")
)

// Request is the body of POST /api/chat.
type Request struct {
	Messages       []models.ChatMessage `json:"messages"`
	ConversationID string               `json:"conversationId,omitempty"`
	AmazonURL      string               `json:"amazonUrl,omitempty"`
}

// AnalysisRunner produces a fresh analysis when none is stored.
type AnalysisRunner interface {
	Run(ctx context.Context, userID string, input models.ProductInput) (*models.ProductAnalysis, error)
}

type StreamConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

// Turn is one answered user message, ready to be streamed.
type Turn struct {
	Conversation *models.Conversation
	Analysis     *models.ProductAnalysis
	Reply        string
}

type Service struct {
	store     storage.Storage
	pipeline  AnalysisRunner
	completer analysis.Completer
	stream    StreamConfig
	logger    *zap.Logger
}

func NewService(store storage.Storage, pipeline AnalysisRunner, completer analysis.Completer, stream StreamConfig, logger *zap.Logger) *Service {
	return &Service{store: store, pipeline: pipeline, completer: completer, stream: stream, logger: logger}
}

// Prepare resolves the conversation, records the user's message and obtains
// the full reply. Nothing has been sent to the client when it returns.
func (s *Service) Prepare(ctx context.Context, userID string, req Request) (*Turn, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	conv, bound, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role == models.RoleUser {
		if err := s.store.AppendMessage(ctx, &models.Message{
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        last.Content,
		}); err != nil {
			return nil, fmt.Errorf("store user message: %w", err)
		}
	}

	messages := make([]models.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: buildSystemPrompt(bound)})
	for _, m := range req.Messages {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			messages = append(messages, m)
		}
	}

	reply, err := s.completer.Complete(ctx, analysis.CompletionRequest{Messages: messages})
	if err != nil {
		streamsTotal.WithLabelValues("completion_failed").Inc()
		s.logger.Error("Chat completion failed",
			zap.Error(err),
			zap.String("conversation_id", conv.ID))
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	return &Turn{Conversation: conv, Analysis: bound, Reply: reply}, nil
}

// Reply is the non-streaming variant used by the Telegram front-end: the
// assistant message is stored as soon as the completion returns.
func (s *Service) Reply(ctx context.Context, userID string, req Request) (*Turn, error) {
	turn, err := s.Prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	if err := s.saveAssistant(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

func (s *Service) saveAssistant(ctx context.Context, turn *Turn) error {
	err := s.store.AppendMessage(ctx, &models.Message{
		ConversationID: turn.Conversation.ID,
		Role:           models.RoleAssistant,
		Content:        turn.Reply,
	})
	if err != nil {
		return fmt.Errorf("store assistant message: %w", err)
	}
	return nil
}

// resolveConversation returns the conversation for this turn and the
// analysis bound to it, if any.
func (s *Service) resolveConversation(ctx context.Context, userID string, req Request) (*models.Conversation, *models.ProductAnalysis, error) {
	if req.AmazonURL != "" {
		return s.productConversation(ctx, userID, req.AmazonURL)
	}

	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, userID, req.ConversationID)
		if err != nil {
			return nil, nil, err
		}
		var bound *models.ProductAnalysis
		if conv.AmazonASIN != "" {
			bound, err = s.store.LatestAnalysis(ctx, userID, conv.AmazonASIN)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, nil, err
			}
		}
		return conv, bound, nil
	}

	conv := &models.Conversation{UserID: userID, ProductTitle: GeneralChatTitle}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil, nil
}

func (s *Service) productConversation(ctx context.Context, userID, rawURL string) (*models.Conversation, *models.ProductAnalysis, error) {
	asin, err := amazon.ParseProductURL(rawURL)
	if err != nil {
		return nil, nil, err
	}

	bound, err := s.store.LatestAnalysis(ctx, userID, asin)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		bound, err = s.pipeline.Run(ctx, userID, models.ProductInput{URL: rawURL})
		if err != nil {
			return nil, nil, fmt.Errorf("analyze product: %w", err)
		}
	case err != nil:
		return nil, nil, err
	}

	conv, err := s.ProductConversation(ctx, userID, bound)
	if err != nil {
		return nil, nil, err
	}
	return conv, bound, nil
}

// ProductConversation returns the user's latest conversation about the
// analyzed product, creating one titled after it when there is none.
func (s *Service) ProductConversation(ctx context.Context, userID string, bound *models.ProductAnalysis) (*models.Conversation, error) {
	conv, err := s.store.LatestConversationForASIN(ctx, userID, bound.ASIN)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	title := strings.TrimSpace(bound.ProductName)
	if title == "" {
		title = "Amazon product " + bound.ASIN
	}
	conv = &models.Conversation{UserID: userID, AmazonASIN: bound.ASIN, ProductTitle: title}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("Started product conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("asin", bound.ASIN),
		zap.String("user_id", userID))
	return conv, nil
}

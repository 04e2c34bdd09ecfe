package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/reviewai/internal/models"
)

type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	analyses      []*models.ProductAnalysis
	now           func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		now:           time.Now,
	}
}

// stamp keeps creation times strictly increasing so ordering is stable even
// when the clock does not advance between inserts.
func (s *MemoryStorage) stamp(last time.Time) time.Time {
	t := s.now().UTC()
	if !t.After(last) {
		t = last.Add(time.Microsecond)
	}
	return t
}

func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// Conversation methods
func (s *MemoryStorage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	var last time.Time
	for _, existing := range s.conversations {
		if existing.CreatedAt.After(last) {
			last = existing.CreatedAt
		}
	}
	c.CreatedAt = s.stamp(last)

	stored := *c
	s.conversations[c.ID] = &stored
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.conversations[id]
	if !exists || c.UserID != userID {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStorage) LatestConversationForASIN(ctx context.Context, userID, asin string) (*models.Conversation, error) {
	return s.latestConversation(userID, func(c *models.Conversation) bool { return c.AmazonASIN == asin })
}

func (s *MemoryStorage) LatestConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	return s.latestConversation(userID, func(*models.Conversation) bool { return true })
}

func (s *MemoryStorage) latestConversation(userID string, match func(*models.Conversation) bool) (*models.Conversation, error) {
	list := s.userConversations(userID)
	for _, c := range list {
		if match(c) {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	list := s.userConversations(userID)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// userConversations returns copies of userID's conversations, newest first.
func (s *MemoryStorage) userConversations(userID string) []*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			out := *c
			list = append(list, &out)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

// Message methods
func (s *MemoryStorage) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[m.ConversationID]; !exists {
		return ErrNotFound
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	var last time.Time
	if msgs := s.messages[m.ConversationID]; len(msgs) > 0 {
		last = msgs[len(msgs)-1].CreatedAt
	}
	m.CreatedAt = s.stamp(last)

	stored := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &stored)
	return nil
}

func (s *MemoryStorage) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// Analysis methods
func (s *MemoryStorage) CreateAnalysis(ctx context.Context, a *models.ProductAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	var last time.Time
	if n := len(s.analyses); n > 0 {
		last = s.analyses[n-1].CreatedAt
	}
	a.CreatedAt = s.stamp(last)

	stored := *a
	s.analyses = append(s.analyses, &stored)
	return nil
}

func (s *MemoryStorage) LatestAnalysis(ctx context.Context, userID, asin string) (*models.ProductAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.analyses) - 1; i >= 0; i-- {
		a := s.analyses[i]
		if a.UserID == userID && a.ASIN == asin {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.ProductAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ProductAnalysis, 0)
	for i := len(s.analyses) - 1; i >= 0; i-- {
		a := s.analyses[i]
		if a.UserID != userID {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/reviewai/internal/models"
)

// runStorageSuite exercises the behavior every Storage backend must share.
func runStorageSuite(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("conversations are scoped to their owner", func(t *testing.T) {
		c := &models.Conversation{UserID: "owner", ProductTitle: "General Chat"}
		require.NoError(t, s.CreateConversation(ctx, c))
		require.NotEmpty(t, c.ID)
		assert.False(t, c.CreatedAt.IsZero())

		got, err := s.GetConversation(ctx, "owner", c.ID)
		require.NoError(t, err)
		assert.Equal(t, "General Chat", got.ProductTitle)
		assert.Empty(t, got.AmazonASIN)

		_, err = s.GetConversation(ctx, "intruder", c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("latest conversation for asin", func(t *testing.T) {
		first := &models.Conversation{UserID: "asin-user", AmazonASIN: "B000000001", ProductTitle: "Old"}
		second := &models.Conversation{UserID: "asin-user", AmazonASIN: "B000000001", ProductTitle: "New"}
		other := &models.Conversation{UserID: "asin-user", AmazonASIN: "B000000002", ProductTitle: "Other"}
		for _, c := range []*models.Conversation{first, second, other} {
			require.NoError(t, s.CreateConversation(ctx, c))
		}

		got, err := s.LatestConversationForASIN(ctx, "asin-user", "B000000001")
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)

		latest, err := s.LatestConversation(ctx, "asin-user")
		require.NoError(t, err)
		assert.Equal(t, other.ID, latest.ID)

		_, err = s.LatestConversationForASIN(ctx, "asin-user", "B999999999")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := s.ListConversations(ctx, "asin-user", 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, other.ID, list[0].ID)
	})

	t.Run("messages are append-only and ordered", func(t *testing.T) {
		c := &models.Conversation{UserID: "msg-user", ProductTitle: "General Chat"}
		require.NoError(t, s.CreateConversation(ctx, c))

		for i, content := range []string{"one", "two", "three"} {
			role := models.RoleUser
			if i%2 == 1 {
				role = models.RoleAssistant
			}
			require.NoError(t, s.AppendMessage(ctx, &models.Message{ConversationID: c.ID, Role: role, Content: content}))
		}

		msgs, err := s.ListMessages(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "one", msgs[0].Content)
		assert.Equal(t, models.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "three", msgs[2].Content)
	})

	t.Run("analyses are immutable rows", func(t *testing.T) {
		older := &models.ProductAnalysis{
			UserID: "an-user", ASIN: "B000000003", ProductName: "Kettle", Price: "$20",
			AnalysisResult: models.AnalysisResult{Verdict: models.VerdictSkip, TrustScore: 40},
		}
		newer := &models.ProductAnalysis{
			UserID: "an-user", ASIN: "B000000003", ProductName: "Kettle", Price: "$18",
			AnalysisResult: models.AnalysisResult{
				Verdict:         models.VerdictBuy,
				TrustScore:      80,
				PerfectFor:      []string{"tea lovers"},
				BuyerPsychology: models.BuyerPsychology{WhyTheyBuy: "fast boil"},
			},
		}
		require.NoError(t, s.CreateAnalysis(ctx, older))
		require.NoError(t, s.CreateAnalysis(ctx, newer))
		assert.NotEqual(t, older.ID, newer.ID)

		got, err := s.LatestAnalysis(ctx, "an-user", "B000000003")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, models.VerdictBuy, got.AnalysisResult.Verdict)
		assert.Equal(t, []string{"tea lovers"}, got.AnalysisResult.PerfectFor)
		assert.Equal(t, "fast boil", got.AnalysisResult.BuyerPsychology.WhyTheyBuy)

		_, err = s.LatestAnalysis(ctx, "someone-else", "B000000003")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := s.ListAnalyses(ctx, "an-user", 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

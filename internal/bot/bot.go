// Package bot is the Telegram front-end: paste an Amazon link to get a
// verdict, or chat about the last product.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/analysis"
	"github.com/xaenox/reviewai/internal/chat"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/storage"
)

const historySize = 5

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type AnalysisRunner interface {
	Run(ctx context.Context, userID string, input models.ProductInput) (*models.ProductAnalysis, error)
}

type ChatReplier interface {
	Reply(ctx context.Context, userID string, req chat.Request) (*chat.Turn, error)
	ProductConversation(ctx context.Context, userID string, a *models.ProductAnalysis) (*models.Conversation, error)
}

// History is the read side of storage the bot needs.
type History interface {
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.ProductAnalysis, error)
	LatestConversation(ctx context.Context, userID string) (*models.Conversation, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	pipeline AnalysisRunner
	chat     ChatReplier
	history  History
	logger   *zap.Logger

	// active maps a user to the conversation their next question goes to.
	mu     sync.Mutex
	active map[string]string
}

func New(token string, pipeline AnalysisRunner, chat ChatReplier, history History, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:      api,
		sender:   api,
		pipeline: pipeline,
		chat:     chat,
		history:  history,
		logger:   logger,
		active:   make(map[string]string),
	}, nil
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// userKey namespaces Telegram users in shared storage.
func userKey(id int64) string {
	return "telegram:" + strconv.FormatInt(id, 10)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	if productURL, ok := amazon.FindProductURL(text); ok {
		b.handleProduct(ctx, message, productURL)
		return
	}
	b.handleChat(ctx, message, text)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "history":
		b.handleHistory(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to ReviewAI! 🛒
Send me an Amazon product link and I'll read the reviews for you and tell you whether to BUY, SKIP or be CAUTIOUS.

After that, just ask me anything about the product.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/history - Show your last analyses

You can send:
- An Amazon product link (amazon.com/dp/... or amzn.to/...)
- Any question about the last product you analyzed`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	user := userKey(message.From.ID)
	analyses, err := b.history.ListAnalyses(ctx, user, historySize)
	if err != nil {
		b.logger.Error("Failed to get user analyses",
			zap.Error(err),
			zap.String("user_id", user))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your history.")
		return
	}

	if len(analyses) == 0 {
		b.sendMessage(message.Chat.ID, "You haven't analyzed any products yet.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatHistory(analyses))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleProduct(ctx context.Context, message *tgbotapi.Message, productURL string) {
	user := userKey(message.From.ID)
	b.sendMessage(message.Chat.ID, "Reading the reviews, this takes a few seconds...")

	result, err := b.pipeline.Run(ctx, user, models.ProductInput{URL: productURL})
	if err != nil {
		b.logger.Error("Failed to analyze product",
			zap.Error(err),
			zap.String("user_id", user),
			zap.String("url", productURL))
		switch {
		case errors.Is(err, amazon.ErrUnsupportedURL):
			b.sendErrorMessage(message.Chat.ID, "That doesn't look like an Amazon product page.")
		case errors.Is(err, analysis.ErrNoReviews):
			b.sendErrorMessage(message.Chat.ID, "I couldn't find any reviews for this product.")
		default:
			b.sendErrorMessage(message.Chat.ID, "Analysis failed. Please try again.")
		}
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatVerdict(result))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send verdict",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}

	conv, err := b.chat.ProductConversation(ctx, user, result)
	if err != nil {
		b.logger.Warn("Failed to bind product conversation",
			zap.Error(err),
			zap.String("user_id", user),
			zap.String("asin", result.ASIN))
		return
	}
	b.setActive(user, conv.ID)
}

func (b *Bot) setActive(user, conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		b.active = make(map[string]string)
	}
	b.active[user] = conversationID
}

// activeConversation returns the conversation the user last talked in. After
// a restart it falls back to their newest stored conversation.
func (b *Bot) activeConversation(ctx context.Context, user string) string {
	b.mu.Lock()
	id, ok := b.active[user]
	b.mu.Unlock()
	if ok {
		return id
	}

	conv, err := b.history.LatestConversation(ctx, user)
	switch {
	case err == nil:
		return conv.ID
	case !errors.Is(err, storage.ErrNotFound):
		b.logger.Warn("Failed to load latest conversation", zap.Error(err), zap.String("user_id", user))
	}
	return ""
}

func (b *Bot) handleChat(ctx context.Context, message *tgbotapi.Message, text string) {
	user := userKey(message.From.ID)

	req := chat.Request{
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: text}},
		ConversationID: b.activeConversation(ctx, user),
	}

	turn, err := b.chat.Reply(ctx, user, req)
	if err != nil {
		b.logger.Error("Failed to answer chat message",
			zap.Error(err),
			zap.String("user_id", user))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I can't answer right now. Please try again.")
		return
	}
	b.setActive(user, turn.Conversation.ID)

	msg := tgbotapi.NewMessage(message.Chat.ID, turn.Reply)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send chat reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

var verdictEmoji = map[string]string{
	models.VerdictBuy:     "✅",
	models.VerdictSkip:    "⛔",
	models.VerdictCaution: "⚠️",
}

func formatVerdict(a *models.ProductAnalysis) string {
	r := a.AnalysisResult
	name := a.ProductName
	if name == "" {
		name = a.ASIN
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", escapeMarkdown(name))
	fmt.Fprintf(&sb, "%s *%s*\n", verdictEmoji[r.Verdict], escapeMarkdown(r.Verdict))
	fmt.Fprintf(&sb, "Trust: %s/100 · Confidence: %s/100\n",
		escapeMarkdown(strconv.Itoa(int(r.TrustScore))),
		escapeMarkdown(strconv.Itoa(int(r.ConfidenceScore))))
	if r.Summary != "" {
		fmt.Fprintf(&sb, "\n_%s_\n", escapeMarkdown(r.Summary))
	}
	writeList(&sb, "Perfect for", r.PerfectFor)
	writeList(&sb, "Avoid if", r.AvoidIf)
	writeList(&sb, "Deal breakers", r.DealBreakers)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n*%s:*\n", escapeMarkdown(title))
	for _, item := range items {
		fmt.Fprintf(sb, "• %s\n", escapeMarkdown(item))
	}
}

func formatHistory(analyses []*models.ProductAnalysis) string {
	response := "*Your recent analyses:*\n\n"
	for _, a := range analyses {
		name := a.ProductName
		if name == "" {
			name = a.ASIN
		}
		response += fmt.Sprintf("%s *%s* %s\n",
			verdictEmoji[a.AnalysisResult.Verdict],
			escapeMarkdown(a.AnalysisResult.Verdict),
			escapeMarkdown(name))
		response += fmt.Sprintf("_%s_\n\n", escapeMarkdown(a.CreatedAt.Format("Jan 2, 2006")))
	}
	return response
}

// escapeMarkdown escapes the characters MarkdownV2 treats as markup.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

package models

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation groups chat messages for one user, optionally bound to a product.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AmazonASIN   string    `json:"amazon_asin,omitempty"`
	ProductTitle string    `json:"product_title"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message belongs to exactly one conversation and is never edited.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage is the wire shape of one turn in a chat request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

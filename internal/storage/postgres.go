package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `
		INSERT INTO conversations (id, user_id, amazon_asin, product_title)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, c.ID, c.UserID, c.AmazonASIN, c.ProductTitle).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, user_id, COALESCE(amazon_asin, ''), product_title, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	c := &models.Conversation{}
	if err := row.Scan(&c.ID, &c.UserID, &c.AmazonASIN, &c.ProductTitle, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND user_id = $2`

	c, err := scanConversation(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *PostgresStorage) LatestConversationForASIN(ctx context.Context, userID, asin string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = $1 AND amazon_asin = $2
		ORDER BY created_at DESC
		LIMIT 1`

	c, err := scanConversation(s.db.QueryRowContext(ctx, query, userID, asin))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *PostgresStorage) LatestConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	list, err := s.ListConversations(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (s *PostgresStorage) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, m.ID, m.ConversationID, string(m.Role), m.Content).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		m.Role = models.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStorage) CreateAnalysis(ctx context.Context, a *models.ProductAnalysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	result, err := json.Marshal(a.AnalysisResult)
	if err != nil {
		return fmt.Errorf("error encoding analysis result: %w", err)
	}
	query := `
		INSERT INTO product_analyses (id, user_id, asin, product_name, price, analysis_result, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = s.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.ASIN, a.ProductName, a.Price, result, a.IsPublic,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating analysis: %w", err)
	}
	return nil
}

const analysisColumns = `id, user_id, asin, product_name, price, analysis_result, is_public, created_at`

func scanAnalysis(row interface{ Scan(...any) error }) (*models.ProductAnalysis, error) {
	a := &models.ProductAnalysis{}
	var result []byte
	if err := row.Scan(&a.ID, &a.UserID, &a.ASIN, &a.ProductName, &a.Price, &result, &a.IsPublic, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &a.AnalysisResult); err != nil {
		return nil, fmt.Errorf("error decoding analysis result: %w", err)
	}
	return a, nil
}

func (s *PostgresStorage) LatestAnalysis(ctx context.Context, userID, asin string) (*models.ProductAnalysis, error) {
	query := `SELECT ` + analysisColumns + `
		FROM product_analyses
		WHERE user_id = $1 AND asin = $2
		ORDER BY created_at DESC
		LIMIT 1`

	a, err := scanAnalysis(s.db.QueryRowContext(ctx, query, userID, asin))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *PostgresStorage) ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.ProductAnalysis, error) {
	query := `SELECT ` + analysisColumns + `
		FROM product_analyses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]*models.ProductAnalysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

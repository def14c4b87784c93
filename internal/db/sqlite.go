package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/sentichat/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the referenced conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    overall_sentiment TEXT,
    sentiment_score REAL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL CHECK (content <> ''),
    sentiment TEXT,
    sentiment_score REAL,
    fallback INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages(conversation_id, created_at);`

type Database struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// New opens (creating if needed) the SQLite file at dbPath and applies the schema.
func New(dbPath string, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("apply schema: %w", err), db.Close())
	}

	logger.Debug("database ready", zap.String("dbPath", dbPath))
	return &Database{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *Database) CreateConversation(ctx context.Context) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: db.now(),
	}
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		conv.ID, conv.CreatedAt)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (db *Database) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	row := db.db.QueryRowContext(ctx, `
        SELECT id, created_at, overall_sentiment, sentiment_score
        FROM conversations
        WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (db *Database) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, created_at, overall_sentiment, sentiment_score
        FROM conversations
        ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// AppendMessage stores msg under its conversation. ID and CreatedAt are
// assigned here; the returned copy carries them.
func (db *Database) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if err := conversationExists(ctx, tx, msg.ConvID); err != nil {
		return models.Message{}, err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = db.now()
	_, err = tx.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, sentiment, sentiment_score, fallback, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConvID, string(msg.Role), msg.Content,
		nullSentiment(msg.Sentiment), nullScore(msg.SentimentScore), msg.Fallback, msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

func (db *Database) UpdateMessageSentiment(ctx context.Context, messageID string, sentiment models.Sentiment, score float64) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE messages SET sentiment = ?, sentiment_score = ? WHERE id = ?`,
		string(sentiment), score, messageID)
	if err != nil {
		return fmt.Errorf("update message sentiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, sql.ErrNoRows)
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first. Messages
// written within the same timestamp keep their insertion order.
func (db *Database) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if err := conversationExists(ctx, db.db, conversationID); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, sentiment, sentiment_score, fallback, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg       models.Message
			role      string
			sentiment sql.NullString
			score     sql.NullFloat64
		)
		if err := rows.Scan(&msg.ID, &msg.ConvID, &role, &msg.Content, &sentiment, &score, &msg.Fallback, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.Sentiment = sentimentPtr(sentiment)
		msg.SentimentScore = scorePtr(score)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateConversationSentiment overwrites the stored aggregate result.
func (db *Database) UpdateConversationSentiment(ctx context.Context, conversationID string, sentiment models.Sentiment, score float64) error {
	res, err := db.db.ExecContext(ctx, `
        UPDATE conversations
        SET overall_sentiment = ?, sentiment_score = ?
        WHERE id = ?`, string(sentiment), score, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation sentiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func conversationExists(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup conversation: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (models.Conversation, error) {
	var (
		conv      models.Conversation
		sentiment sql.NullString
		score     sql.NullFloat64
	)
	if err := s.Scan(&conv.ID, &conv.CreatedAt, &sentiment, &score); err != nil {
		return models.Conversation{}, err
	}
	conv.OverallSentiment = sentimentPtr(sentiment)
	conv.SentimentScore = scorePtr(score)
	return conv, nil
}

func nullSentiment(s *models.Sentiment) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func nullScore(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func sentimentPtr(ns sql.NullString) *models.Sentiment {
	if !ns.Valid {
		return nil
	}
	s := models.Sentiment(ns.String)
	return &s
}

func scorePtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/storage/models"
	"github.com/cityrag/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		confidence REAL,
		chunks_used INTEGER,
		fallback_used INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answers_created ON answers(created_at);

	CREATE TABLE IF NOT EXISTS answer_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer_id TEXT NOT NULL,
		url TEXT,
		source_file TEXT,
		similarity REAL,
		FOREIGN KEY (answer_id) REFERENCES answers(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_answer ON answer_sources(answer_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (answer_id) REFERENCES answers(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_answer ON feedback(answer_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertAnswer(record *models.AnswerRecord) error {
	query := `
		INSERT INTO answers (id, query_text, answer, confidence, chunks_used, fallback_used, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	fallbackUsed := 0
	if record.FallbackUsed {
		fallbackUsed = 1
	}

	_, err := c.db.Exec(
		query,
		record.ID,
		record.QueryText,
		record.Answer,
		record.Confidence,
		record.ChunksUsed,
		fallbackUsed,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}

	logger.Debug("Answer recorded",
		zap.String("answer_id", record.ID),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) InsertAnswerSource(source *models.AnswerSource) error {
	query := `INSERT INTO answer_sources (answer_id, url, source_file, similarity) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		source.AnswerID,
		source.URL,
		source.SourceFile,
		source.Similarity,
	)

	if err != nil {
		return fmt.Errorf("failed to insert answer source: %w", err)
	}

	return nil
}

func (c *Client) GetRecentAnswers(limit int) ([]models.AnswerRecord, error) {
	query := `
		SELECT id, query_text, answer, confidence, chunks_used, fallback_used, latency_ms, created_at
		FROM answers
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent answers: %w", err)
	}
	defer rows.Close()

	var records []models.AnswerRecord
	for rows.Next() {
		var r models.AnswerRecord
		var fallbackUsed int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.QueryText, &r.Answer, &r.Confidence, &r.ChunksUsed, &fallbackUsed, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.FallbackUsed = fallbackUsed != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) GetAnswerSources(answerID string) ([]models.AnswerSource, error) {
	query := `SELECT answer_id, url, source_file, similarity FROM answer_sources WHERE answer_id = ? ORDER BY similarity DESC`

	rows, err := c.db.Query(query, answerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answer sources: %w", err)
	}
	defer rows.Close()

	var sources []models.AnswerSource
	for rows.Next() {
		var s models.AnswerSource
		if err := rows.Scan(&s.AnswerID, &s.URL, &s.SourceFile, &s.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

func (c *Client) StoreFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO feedback (answer_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.Exec(
		query,
		feedback.AnswerID,
		helpful,
		feedback.Comment,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("answer_id", feedback.AnswerID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

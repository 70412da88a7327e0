package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/coursecraft/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// Feedback is a free-text message a user sent through /feedback.
type Feedback struct {
	UserID    string
	Username  string
	Text      string
	CreatedAt time.Time
}

// FeedbackSink records user feedback.
type FeedbackSink interface {
	Record(ctx context.Context, fb Feedback) error
}

// NopFeedbackSink drops all feedback.
type NopFeedbackSink struct{}

func (NopFeedbackSink) Record(context.Context, Feedback) error {
	return nil
}

// MemoryFeedbackSink keeps feedback in memory for tests and single-process runs.
type MemoryFeedbackSink struct {
	mu      sync.Mutex
	entries []Feedback
}

func NewMemoryFeedbackSink() *MemoryFeedbackSink {
	return &MemoryFeedbackSink{}
}

func (s *MemoryFeedbackSink) Record(_ context.Context, fb Feedback) error {
	if err := validateFeedback(&fb); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = append(s.entries, fb)
	s.mu.Unlock()

	return nil
}

func (s *MemoryFeedbackSink) Entries() []Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Feedback{}, s.entries...)
}

const createFeedbackTable = `CREATE TABLE IF NOT EXISTS feedback (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresFeedbackSink inserts feedback into the feedback table.
type PostgresFeedbackSink struct {
	pool *pgxpool.Pool
}

// NewPostgresFeedbackSink creates the feedback table if needed.
func NewPostgresFeedbackSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresFeedbackSink, error) {
	if err := database.Migrate(ctx, pool, createFeedbackTable); err != nil {
		return nil, fmt.Errorf("migrate feedback: %w", err)
	}
	return &PostgresFeedbackSink{pool: pool}, nil
}

func (s *PostgresFeedbackSink) Record(ctx context.Context, fb Feedback) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("feedback sink pool is nil")
	}
	if err := validateFeedback(&fb); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (user_id, username, text, created_at) VALUES ($1, $2, $3, $4)`,
		fb.UserID, fb.Username, fb.Text, fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}

	slog.Debug("feedback recorded", "user_id", fb.UserID)
	return nil
}

func validateFeedback(fb *Feedback) error {
	if fb.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(fb.Text) == "" {
		return fmt.Errorf("feedback text is required")
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	return nil
}

package course

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/coursecraft/internal/platform/database"
)

const dbTimeout = 5 * time.Second

const postgresSchema = `CREATE TABLE IF NOT EXISTS user_courses (
	user_id     TEXT PRIMARY KEY,
	channel     TEXT NOT NULL DEFAULT '',
	chat_id     TEXT NOT NULL DEFAULT '',
	skill       TEXT NOT NULL DEFAULT '',
	goal        TEXT NOT NULL DEFAULT '',
	experience  TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT '',
	plan        JSONB NOT NULL DEFAULT '[]',
	lessons     JSONB NOT NULL DEFAULT '[]',
	current_day SMALLINT NOT NULL DEFAULT 0,
	progress    SMALLINT NOT NULL DEFAULT 0,
	completed   JSONB NOT NULL DEFAULT '[]',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRepository stores records in PostgreSQL with JSONB sequences.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the table if needed and returns the repository.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := database.Migrate(ctx, pool, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate user_courses: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (p *PostgresRepository) LoadAll(ctx context.Context) (map[string]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT user_id, channel, chat_id, skill, goal, experience, preferences,
		        plan::text, lessons::text, current_day, progress, completed::text, updated_at
		 FROM user_courses`)
	if err != nil {
		return nil, fmt.Errorf("query user_courses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var (
			r         row
			day, prog int16
		)
		if err := rows.Scan(&r.UserID, &r.Channel, &r.ChatID, &r.Skill, &r.Goal, &r.Experience, &r.Preferences,
			&r.Plan, &r.Lessons, &day, &prog, &r.Completed, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user_courses: %w", err)
		}
		r.CurrentDay, r.Progress = int(day), int(prog)

		rec, err := decodeRecord(r)
		if err != nil {
			slog.Warn("skipping malformed course row", "user_id", r.UserID, "error", err)
			continue
		}
		out[rec.UserID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user_courses: %w", err)
	}
	return out, nil
}

func (p *PostgresRepository) Upsert(ctx context.Context, rec Record) error {
	r, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = p.pool.Exec(ctx,
		`INSERT INTO user_courses
		   (user_id, channel, chat_id, skill, goal, experience, preferences, plan, lessons, current_day, progress, completed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12::jsonb, $13)
		 ON CONFLICT (user_id) DO UPDATE SET
		   channel = EXCLUDED.channel,
		   chat_id = EXCLUDED.chat_id,
		   skill = EXCLUDED.skill,
		   goal = EXCLUDED.goal,
		   experience = EXCLUDED.experience,
		   preferences = EXCLUDED.preferences,
		   plan = EXCLUDED.plan,
		   lessons = EXCLUDED.lessons,
		   current_day = EXCLUDED.current_day,
		   progress = EXCLUDED.progress,
		   completed = EXCLUDED.completed,
		   updated_at = EXCLUDED.updated_at`,
		r.UserID, r.Channel, r.ChatID, r.Skill, r.Goal, r.Experience, r.Preferences,
		r.Plan, r.Lessons, int16(r.CurrentDay), int16(r.Progress), r.Completed, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert course for %s: %w", rec.UserID, err)
	}
	return nil
}

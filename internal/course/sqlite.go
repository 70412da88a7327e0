package course

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS user_courses (
	user_id     TEXT PRIMARY KEY,
	channel     TEXT NOT NULL DEFAULT '',
	chat_id     TEXT NOT NULL DEFAULT '',
	skill       TEXT NOT NULL DEFAULT '',
	goal        TEXT NOT NULL DEFAULT '',
	experience  TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT '',
	plan        TEXT NOT NULL DEFAULT '[]',
	lessons     TEXT NOT NULL DEFAULT '[]',
	current_day INTEGER NOT NULL DEFAULT 0,
	progress    INTEGER NOT NULL DEFAULT 0,
	completed   TEXT NOT NULL DEFAULT '[]',
	updated_at  TEXT NOT NULL DEFAULT ''
)`

const sqliteUpsert = `INSERT INTO user_courses
	(user_id, channel, chat_id, skill, goal, experience, preferences, plan, lessons, current_day, progress, completed, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		channel = excluded.channel,
		chat_id = excluded.chat_id,
		skill = excluded.skill,
		goal = excluded.goal,
		experience = excluded.experience,
		preferences = excluded.preferences,
		plan = excluded.plan,
		lessons = excluded.lessons,
		current_day = excluded.current_day,
		progress = excluded.progress,
		completed = excluded.completed,
		updated_at = excluded.updated_at`

const sqliteSelect = `SELECT user_id, channel, chat_id, skill, goal, experience, preferences,
	plan, lessons, current_day, progress, completed, updated_at FROM user_courses`

// SQLiteRepository stores records in a single SQLite table.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path and
// prepares the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	repo, err := NewSQLiteRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("sqlite course repository ready", "path", path)
	return repo, nil
}

// NewSQLiteRepository wraps an open database and creates the table.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create user_courses table: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (s *SQLiteRepository) LoadAll(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect)
	if err != nil {
		return nil, fmt.Errorf("query user_courses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var (
			r         row
			updatedAt string
		)
		if err := rows.Scan(&r.UserID, &r.Channel, &r.ChatID, &r.Skill, &r.Goal, &r.Experience, &r.Preferences,
			&r.Plan, &r.Lessons, &r.CurrentDay, &r.Progress, &r.Completed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user_courses: %w", err)
		}
		if updatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
				r.UpdatedAt = t
			}
		}

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

func (s *SQLiteRepository) Upsert(ctx context.Context, rec Record) error {
	r, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert,
		r.UserID, r.Channel, r.ChatID, r.Skill, r.Goal, r.Experience, r.Preferences,
		r.Plan, r.Lessons, r.CurrentDay, r.Progress, r.Completed, r.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert course for %s: %w", rec.UserID, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteRepository) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

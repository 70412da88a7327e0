package course

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v4"
)

func sampleRecord(userID string) Record {
	plan := make([]string, Days)
	lessons := make([]string, Days)
	for i := range plan {
		plan[i] = fmt.Sprintf("Title %d", i+1)
		lessons[i] = fmt.Sprintf("<b>Day %d: Title</b>\nBody with \"quotes\", commas and 'eval(1)'", i+1)
	}
	return Record{
		UserID:      userID,
		Target:      Target{Channel: "telegram", ChatID: "42"},
		Skill:       "Guitar",
		Goal:        "Play a song",
		Experience:  "Beginner",
		Preferences: "",
		Plan:        plan,
		Lessons:     lessons,
		CurrentDay:  3,
		Progress:    56,
		Completed:   Ledger{{Skill: "Guitar", Day: 0}, {Skill: "Guitar", Day: 1}, {Skill: "Guitar", Day: 2}},
		UpdatedAt:   time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

// assertSameRecord compares records structurally, with UpdatedAt by instant.
func assertSameRecord(t *testing.T, got, want Record) {
	t.Helper()
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, want.UpdatedAt)
	}
	got.UpdatedAt, want.UpdatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("record mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func roundTrip(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	active := sampleRecord("u1")
	reduced := Record{
		UserID:    "u2",
		Completed: Ledger{{Skill: "Chess", Day: 6}},
		UpdatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	for _, rec := range []Record{active, reduced} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert(%s) error = %v", rec.UserID, err)
		}
	}

	// Overwrite keeps one row per user.
	active.CurrentDay, active.Progress = 4, 70
	if err := repo.Upsert(ctx, active); err != nil {
		t.Fatalf("Upsert() overwrite error = %v", err)
	}

	all, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("LoadAll() = %d records, want 2", len(all))
	}
	assertSameRecord(t, all["u1"], active)
	assertSameRecord(t, all["u2"], reduced)
}

func TestMemoryRepository_RoundTrip(t *testing.T) {
	roundTrip(t, NewMemoryRepository())
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "course_craft.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer repo.Close()

	roundTrip(t, repo)
}

func TestSQLiteRepository_SkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer repo.Close()

	if err := repo.Upsert(ctx, sampleRecord("good")); err != nil {
		t.Fatal(err)
	}
	bad := []struct {
		user, plan, completed string
	}{
		{"python-literal", `['a', 'b']`, `[]`},
		{"wrong-type", `[1, 2, 3]`, `[]`},
		{"bad-ledger", `[]`, `[{"skill": "x", "day": 9}]`},
		{"code", `__import__('os').system('true')`, `[]`},
	}
	for _, b := range bad {
		if _, err := repo.db.ExecContext(ctx,
			`INSERT INTO user_courses (user_id, plan, completed) VALUES (?, ?, ?)`, b.user, b.plan, b.completed); err != nil {
			t.Fatalf("insert %s: %v", b.user, err)
		}
	}

	all, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("LoadAll() = %d records, want only the well-formed one", len(all))
	}
	if _, ok := all["good"]; !ok {
		t.Error("well-formed record missing")
	}
}

func TestSQLiteRepository_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS user_courses")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	repo, err := NewSQLiteRepository(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}

	t.Run("upsert error is wrapped", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_courses")).
			WillReturnError(errors.New("database is locked"))
		err := repo.Upsert(context.Background(), sampleRecord("u1"))
		if err == nil {
			t.Fatal("Upsert() should fail")
		}
	})

	t.Run("load skips undecodable rows", func(t *testing.T) {
		cols := []string{"user_id", "channel", "chat_id", "skill", "goal", "experience", "preferences",
			"plan", "lessons", "current_day", "progress", "completed", "updated_at"}
		rows := sqlmock.NewRows(cols).
			AddRow("u1", "telegram", "1", "Chess", "", "", "", "[]", "[]", 0, 0, `[{"skill":"Chess","day":6}]`, "2026-03-01T00:00:00Z").
			AddRow("u2", "telegram", "2", "Chess", "", "", "", "not json", "[]", 0, 0, "[]", "").
			AddRow("u3", "telegram", "3", "Chess", "", "", "", `["a","b"]`, "[]", 0, 0, "[]", "")
		mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id")).WillReturnRows(rows)

		all, err := repo.LoadAll(context.Background())
		if err != nil {
			t.Fatalf("LoadAll() error = %v", err)
		}
		if len(all) != 1 || !all["u1"].Completed.Completed("chess") {
			t.Errorf("LoadAll() = %+v, want only u1", all)
		}
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id")).WillReturnError(errors.New("no such table"))
		if _, err := repo.LoadAll(context.Background()); err == nil {
			t.Error("LoadAll() should fail")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewSQLiteRepository_NilDB(t *testing.T) {
	if _, err := NewSQLiteRepository(context.Background(), nil); err == nil {
		t.Error("NewSQLiteRepository(nil) should fail")
	}
}

func TestNewPostgresRepository_NilPool(t *testing.T) {
	if _, err := NewPostgresRepository(context.Background(), nil); err == nil {
		t.Error("NewPostgresRepository(nil) should fail")
	}
}

type flakyRepo struct {
	failures int
	calls    int
	inner    *MemoryRepository
}

func (f *flakyRepo) LoadAll(ctx context.Context) (map[string]Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.inner.LoadAll(ctx)
}

func (f *flakyRepo) Upsert(ctx context.Context, rec Record) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.inner.Upsert(ctx, rec)
}

func TestRetryingRepository(t *testing.T) {
	noDelay := WithRetryBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })

	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"first try", 0, 3, false, 1},
		{"recovers", 2, 3, false, 3},
		{"exhausted", 5, 3, true, 3},
		{"single attempt", 1, 1, true, 1},
		{"zero attempts means one", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyRepo{failures: tt.failures, inner: NewMemoryRepository()}
			repo := NewRetryingRepository(inner, tt.attempts, noDelay)

			err := repo.Upsert(context.Background(), sampleRecord("u1"))
			if (err != nil) != tt.wantErr {
				t.Errorf("Upsert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if inner.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", inner.calls, tt.wantCalls)
			}
		})
	}

	t.Run("load all", func(t *testing.T) {
		inner := &flakyRepo{failures: 1, inner: NewMemoryRepository()}
		_ = inner.inner.Upsert(context.Background(), sampleRecord("u1"))
		all, err := NewRetryingRepository(inner, 2, noDelay).LoadAll(context.Background())
		if err != nil || len(all) != 1 {
			t.Errorf("LoadAll() = %d, %v", len(all), err)
		}
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		inner := &flakyRepo{failures: 5, inner: NewMemoryRepository()}
		if err := NewRetryingRepository(inner, 5, noDelay).Upsert(ctx, sampleRecord("u1")); err == nil {
			t.Error("Upsert() should fail")
		}
		if inner.calls > 1 {
			t.Errorf("calls = %d, want at most 1", inner.calls)
		}
	})
}

func TestCodec_EmptySequencesEncodeAsArrays(t *testing.T) {
	r, err := encodeRecord(Record{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Plan != "[]" || r.Lessons != "[]" || r.Completed != "[]" {
		t.Errorf("encoded = %q %q %q, want []", r.Plan, r.Lessons, r.Completed)
	}
	if r.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should default to now")
	}
}

func TestCodec_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		row  row
	}{
		{"no user", row{Plan: "[]", Lessons: "[]", Completed: "[]"}},
		{"three lessons", row{UserID: "u", Lessons: `["a","b","c"]`}},
		{"day out of range", row{UserID: "u", CurrentDay: 7}},
		{"progress out of range", row{UserID: "u", Progress: 101}},
		{"eight plan items", row{UserID: "u", Plan: `["1","2","3","4","5","6","7","8"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeRecord(tt.row); err == nil {
				t.Error("decodeRecord() should fail")
			}
		})
	}
}

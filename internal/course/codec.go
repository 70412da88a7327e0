package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Stored sequences are JSON arrays checked against these schemas before
// they are decoded.
var (
	stringListSchema = mustSchema(`{
		"type": "array",
		"maxItems": 7,
		"items": {"type": "string"}
	}`)
	ledgerSchema = mustSchema(`{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["skill", "day"],
			"properties": {
				"skill": {"type": "string", "minLength": 1},
				"day": {"type": "integer", "minimum": 0, "maximum": 6}
			}
		}
	}`)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// row is the flat storage form of a Record shared by the SQL repositories.
type row struct {
	UserID      string
	Channel     string
	ChatID      string
	Skill       string
	Goal        string
	Experience  string
	Preferences string
	Plan        string
	Lessons     string
	CurrentDay  int
	Progress    int
	Completed   string
	UpdatedAt   time.Time
}

func encodeRecord(rec Record) (row, error) {
	plan, err := encodeJSON(rec.Plan, []string{})
	if err != nil {
		return row{}, fmt.Errorf("encode plan: %w", err)
	}
	lessons, err := encodeJSON(rec.Lessons, []string{})
	if err != nil {
		return row{}, fmt.Errorf("encode lessons: %w", err)
	}
	completed, err := encodeJSON(rec.Completed, Ledger{})
	if err != nil {
		return row{}, fmt.Errorf("encode ledger: %w", err)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return row{
		UserID:      rec.UserID,
		Channel:     rec.Target.Channel,
		ChatID:      rec.Target.ChatID,
		Skill:       rec.Skill,
		Goal:        rec.Goal,
		Experience:  rec.Experience,
		Preferences: rec.Preferences,
		Plan:        plan,
		Lessons:     lessons,
		CurrentDay:  rec.CurrentDay,
		Progress:    rec.Progress,
		Completed:   completed,
		UpdatedAt:   updatedAt.UTC(),
	}, nil
}

func decodeRecord(r row) (Record, error) {
	var rec Record
	if err := decodeJSON(stringListSchema, r.Plan, &rec.Plan); err != nil {
		return Record{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := decodeJSON(stringListSchema, r.Lessons, &rec.Lessons); err != nil {
		return Record{}, fmt.Errorf("decode lessons: %w", err)
	}
	if err := decodeJSON(ledgerSchema, r.Completed, &rec.Completed); err != nil {
		return Record{}, fmt.Errorf("decode ledger: %w", err)
	}

	if len(rec.Plan) == 0 {
		rec.Plan = nil
	}
	if len(rec.Lessons) == 0 {
		rec.Lessons = nil
	}
	if len(rec.Completed) == 0 {
		rec.Completed = nil
	}

	rec.UserID = r.UserID
	rec.Target = Target{Channel: r.Channel, ChatID: r.ChatID}
	rec.Skill = r.Skill
	rec.Goal = r.Goal
	rec.Experience = r.Experience
	rec.Preferences = r.Preferences
	rec.CurrentDay = r.CurrentDay
	rec.Progress = r.Progress
	rec.UpdatedAt = r.UpdatedAt

	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func validateRecord(rec Record) error {
	if rec.UserID == "" {
		return errors.New("user_id is empty")
	}
	if n := len(rec.Lessons); n != 0 && n != Days {
		return fmt.Errorf("lessons has %d entries, want 0 or %d", n, Days)
	}
	if n := len(rec.Plan); n != 0 && n != Days {
		return fmt.Errorf("plan has %d entries, want 0 or %d", n, Days)
	}
	if rec.CurrentDay < 0 || rec.CurrentDay > LastDay {
		return fmt.Errorf("current_day %d out of range", rec.CurrentDay)
	}
	if rec.Progress < 0 || rec.Progress > 100 {
		return fmt.Errorf("progress %d out of range", rec.Progress)
	}
	return nil
}

func encodeJSON[T any](v T, empty T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		data, err = json.Marshal(empty)
		if err != nil {
			return "", err
		}
	}
	return string(data), nil
}

func decodeJSON(schema *gojsonschema.Schema, raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		raw = "[]"
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return err
	}
	return nil
}

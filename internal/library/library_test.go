package library_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/coursecraft/internal/library"
)

func TestLoad_YAML(t *testing.T) {
	dir := setupTestLibrary(t)

	lib, err := library.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Two valid YAML entries; the "video" kind is rejected.
	if lib.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lib.Len())
	}
}

func TestLoad_XLSX(t *testing.T) {
	dir := t.TempDir()

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"title", "author", "kind", "content", "tags"},
		{"Hooked on Chords", "A. Player", "Book", "Open chords first.", "guitar, music"},
		{"", "skipped", "book", "no title", "guitar"},
		{"Brush Basics", "B. Painter", "article", "Wet on wet.", "watercolor"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := f.SaveAs(filepath.Join(dir, "resources.xlsx")); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}

	lib, err := library.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lib.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", lib.Len())
	}

	got := lib.Match("guitar")
	if len(got) != 1 || got[0].Kind != library.KindBook {
		t.Errorf("Match(guitar) = %+v, want one book", got)
	}
}

func TestLoad_Text(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"Zen of Python",
		"Tim Peters",
		"article",
		"Beautiful is better than ugly.",
		"python, programming",
		"",
		"Dangling Title",
		"Someone",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "resources.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := library.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lib.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (incomplete block skipped)", lib.Len())
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := library.Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Load() should fail for a missing directory")
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	lib, err := library.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lib.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for empty dir", lib.Len())
	}
}

func TestLibrary_Match(t *testing.T) {
	lib := library.New()
	for _, r := range []library.Resource{
		{Title: "Guitar Method", Kind: "book", Tags: []string{"Guitar", "music"}},
		{Title: "Straße Deutsch", Kind: "article", Tags: []string{"deutsch", "STRASSE"}},
		{Title: "Untagged", Kind: "book"},
		{Title: "A Tour of Go", Kind: "article", Tags: []string{"go"}},
	} {
		if err := lib.Add(r); err != nil {
			t.Fatalf("Add(%q) error = %v", r.Title, err)
		}
	}

	tests := []struct {
		skill string
		want  int
	}{
		{"guitar", 1},
		{"GUITAR", 1},
		{"guit", 1},
		{"Guitar basics", 0},
		{"go", 1},
		{"Django", 0},
		{"Mongo", 0},
		{"straße", 1},
		{"cooking", 0},
		{"   ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.skill, func(t *testing.T) {
			if got := lib.Match(tt.skill); len(got) != tt.want {
				t.Errorf("Match(%q) = %d resources, want %d", tt.skill, len(got), tt.want)
			}
		})
	}
}

func TestLibrary_Add(t *testing.T) {
	tests := []struct {
		name    string
		res     library.Resource
		wantErr bool
	}{
		{"book", library.Resource{Title: "T", Kind: "book"}, false},
		{"article uppercase", library.Resource{Title: "T", Kind: " ARTICLE "}, false},
		{"bad kind", library.Resource{Title: "T", Kind: "video"}, true},
		{"no title", library.Resource{Kind: "book"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := library.New().Add(tt.res)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLibrary_ContentTruncated(t *testing.T) {
	lib := library.New()
	long := strings.Repeat("é", library.MaxContentRunes+20)
	if err := lib.Add(library.Resource{Title: "Long", Kind: "book", Content: long}); err != nil {
		t.Fatal(err)
	}
	got := lib.All()[0].Content
	if n := len([]rune(got)); n != library.MaxContentRunes {
		t.Errorf("content runes = %d, want %d", n, library.MaxContentRunes)
	}
}

func setupTestLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	sub := filepath.Join(dir, "music")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(sub, "guitar.yaml"), []byte(`
resources:
  - title: "Guitar for Absolute Beginners"
    author: "J. Strummer"
    kind: book
    content: "Start with E minor and G major. Keep your thumb behind the neck."
    tags: [guitar, music]
  - title: "Practising Without a Metronome"
    author: "R. Tempo"
    kind: article
    content: "Tap your foot."
    tags: [rhythm]
  - title: "Watch Me Play"
    kind: video
    tags: [guitar]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	// Not a resource file.
	if err := os.WriteFile(filepath.Join(sub, "README.md"), []byte("# notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	return dir
}

// Package library loads the read-only resource library of books and
// articles that content generation draws on.
package library

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Library holds resources loaded from disk. It is safe for concurrent use.
type Library struct {
	rootDir   string
	resources []Resource
	mu        sync.RWMutex
}

// New returns an empty library. Resources can be added with Add.
func New() *Library {
	return &Library{}
}

// Load creates a library from every resource file under rootDir.
// Supported formats: .yaml/.yml (resources list), .xlsx (first sheet, header
// row title|author|kind|content|tags) and .txt (blocks of five lines).
func Load(rootDir string) (*Library, error) {
	l := &Library{rootDir: rootDir}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading library: %w", err)
	}

	slog.Info("resource library loaded", "resources", len(l.resources), "path", rootDir)
	return l, nil
}

// Add validates and stores a resource. Content longer than MaxContentRunes
// is truncated.
func (l *Library) Add(r Resource) error {
	r, err := normalize(r)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.resources = append(l.resources, r)
	l.mu.Unlock()
	return nil
}

// All returns a copy of every loaded resource.
func (l *Library) All() []Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Resource, len(l.resources))
	copy(out, l.resources)
	return out
}

// Len returns the number of loaded resources.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.resources)
}

// Match returns resources with a tag that contains the skill name,
// compared case-folded.
func (l *Library) Match(skill string) []Resource {
	needle := Fold(skill)
	if needle == "" {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Resource
	for _, r := range l.resources {
		for _, tag := range r.Tags {
			t := Fold(tag)
			if t == "" {
				continue
			}
			if strings.Contains(t, needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Fold normalizes s for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func (l *Library) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		var resources []Resource
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			resources, err = readYAML(path)
		case ".xlsx":
			resources, err = readXLSX(path)
		case ".txt":
			resources, err = readText(path)
		default:
			return nil
		}
		if err != nil {
			slog.Warn("skipping unreadable resource file", "path", path, "error", err)
			return nil
		}

		for _, r := range resources {
			if err := l.Add(r); err != nil {
				slog.Warn("skipping invalid resource", "path", path, "title", r.Title, "error", err)
			}
		}
		return nil
	})
}

func readYAML(path string) ([]Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f resourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return f.Resources, nil
}

func readXLSX(path string) ([]Resource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	var out []Resource
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		if cell(0) == "" {
			continue
		}
		out = append(out, Resource{
			Title:   cell(0),
			Author:  cell(1),
			Kind:    cell(2),
			Content: cell(3),
			Tags:    splitTags(cell(4)),
		})
	}
	return out, nil
}

// readText parses the plain-text import format: non-blank lines grouped in
// fives (title, author, kind, content, comma-separated tags).
func readText(path string) ([]Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var out []Resource
	for i := 0; i+4 < len(lines); i += 5 {
		out = append(out, Resource{
			Title:   lines[i],
			Author:  lines[i+1],
			Kind:    lines[i+2],
			Content: lines[i+3],
			Tags:    splitTags(lines[i+4]),
		})
	}
	if rem := len(lines) % 5; rem != 0 {
		slog.Warn("resource file ends with an incomplete block", "path", path, "lines", rem)
	}
	return out, nil
}

func normalize(r Resource) (Resource, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	if r.Title == "" {
		return r, fmt.Errorf("resource title is required")
	}
	if r.Kind != KindBook && r.Kind != KindArticle {
		return r, fmt.Errorf("resource kind must be %q or %q, got %q", KindBook, KindArticle, r.Kind)
	}
	r.Content = Truncate(r.Content, MaxContentRunes)
	return r, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Package prompts serves the system prompt templates the agents and the
// chat orchestrator consume by name.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const (
	GenerateSQL  = "generate_sql"
	ChartBuilder = "chart_builder"
	ChatWithData = "chat_with_data"
	ChatWithBro  = "chat_with_bro"
)

var ErrTemplateNotFound = errors.New("prompts: template not found")

//go:embed templates/*.md
var embedded embed.FS

// Store is an immutable set of named templates.
type Store struct {
	templates map[string]string
}

// Default loads the templates compiled into the binary.
func Default() *Store {
	s, err := Load(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads every *.md file under dir; the template name is the file name without extension.
func Load(fsys fs.FS, dir string) (*Store, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", dir, err)
	}

	s := &Store{templates: make(map[string]string, len(entries))}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".md" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("prompts: read %s: %w", e.Name(), err)
		}
		s.templates[strings.TrimSuffix(e.Name(), ".md")] = string(b)
	}
	return s, nil
}

// FromMap builds a store from literal templates.
func FromMap(m map[string]string) *Store {
	s := &Store{templates: make(map[string]string, len(m))}
	for k, v := range m {
		s.templates[k] = v
	}
	return s
}

// Get returns the template called name.
func (s *Store) Get(name string) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// MustGet is Get for names known at compile time.
func (s *Store) MustGet(name string) string {
	t, err := s.Get(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

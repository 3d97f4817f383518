// Package promptstore implements the Prompt Store (spec §4.2): a
// read-mostly, populate-on-first-use collection of the four named
// prompt templates, with {{PLACEHOLDER}} substitution. It follows the
// teacher's PromptBuilder in spirit — stateless formatting logic kept
// separate from the data it formats — but the templates here live as
// files on disk (PROMPTS_DIR) rather than Go string constants, since the
// spec calls for externally editable prompt text.
package promptstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Names of the four templates the pipeline requires (spec §4.2, §6).
const (
	TriageTemplate           = "triage"
	BasicExtractionTemplate  = "basic_extraction"
	QuotesDataTemplate       = "quotes_data"
	RelationsTemplate        = "relations"
)

// RequiredPlaceholders lists the fixed, per-template placeholder set
// (spec §6). Render fails with ErrPlaceholderMissing if a name listed
// here has no corresponding value supplied.
var RequiredPlaceholders = map[string][]string{
	TriageTemplate:          {"TITLE", "SOURCE_TYPE", "ORIGIN_COUNTRY", "SOURCE_DATE", "CONTENT"},
	BasicExtractionTemplate: {"TITLE", "SOURCE_TYPE", "ORIGIN_COUNTRY", "SOURCE_DATE", "CONTENT"},
	QuotesDataTemplate:      {"TITLE", "SOURCE_TYPE", "ORIGIN_COUNTRY", "SOURCE_DATE", "CONTENT", "STEP_1_JSON"},
	RelationsTemplate:       {"TITLE", "SOURCE_TYPE", "ORIGIN_COUNTRY", "SOURCE_DATE", "BASIC_ELEMENTS_NORMALIZED", "COMPLEMENTARY_ELEMENTS"},
}

// ErrPromptNotFound is returned when a template name isn't one of the
// four recognized templates, or its file doesn't exist under the
// configured prompts directory.
var ErrPromptNotFound = errors.New("promptstore: prompt not found")

// ErrPlaceholderMissing is returned when Render is called without a
// value for one of the template's required placeholders.
var ErrPlaceholderMissing = errors.New("promptstore: required placeholder missing")

var placeholderPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// Store loads and caches prompt templates from a directory on disk.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a Store reading templates from dir. Templates are not read
// from disk until first requested.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Load returns the raw template text for name, reading it from disk and
// caching it on first call.
func (s *Store) Load(name string) (string, error) {
	if _, ok := RequiredPlaceholders[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrPromptNotFound, name)
	}

	s.mu.RLock()
	text, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return text, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock in case another goroutine populated
	// the cache while we waited.
	if text, ok := s.cache[name]; ok {
		return text, nil
	}

	path := filepath.Join(s.dir, name+".txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q (%s)", ErrPromptNotFound, name, path)
		}
		return "", fmt.Errorf("promptstore: reading %q: %w", path, err)
	}

	text = string(raw)
	s.cache[name] = text
	return text, nil
}

// Render loads the named template and substitutes values into its
// {{PLACEHOLDER}} markers. It fails if any placeholder required for this
// template (RequiredPlaceholders[name]) has no entry in values.
func (s *Store) Render(name string, values map[string]string) (string, error) {
	required, ok := RequiredPlaceholders[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPromptNotFound, name)
	}
	for _, ph := range required {
		if _, ok := values[ph]; !ok {
			return "", fmt.Errorf("%w: %q requires {{%s}}", ErrPlaceholderMissing, name, ph)
		}
	}

	text, err := s.Load(name)
	if err != nil {
		return "", err
	}

	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return match
	})
	return out, nil
}

package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when creating a record whose key is taken.
	ErrExists = errors.New("record already exists")
	// ErrCorrupt means a store file exists but is not valid JSON for its type.
	ErrCorrupt = errors.New("store file is corrupt")
	// ErrInvalidFeedback rejects a rating outside 1-5 or empty text.
	ErrInvalidFeedback = errors.New("invalid feedback")
)

// JSONFile is one JSON document on disk. Every mutation is a locked
// read-modify-write, and writes replace the file by renaming a temp file.
type JSONFile[T any] struct {
	mu    sync.Mutex
	path  string
	empty func() T
}

// NewJSONFile creates a store at path. empty builds the value used when the file is absent.
func NewJSONFile[T any](path string, empty func() T) *JSONFile[T] {
	return &JSONFile[T]{path: path, empty: empty}
}

// Path returns the backing file.
func (f *JSONFile[T]) Path() string {
	return f.path
}

// Load reads the current value. A missing file yields the empty value.
func (f *JSONFile[T]) Load() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Update applies fn to the current value and persists the result. If fn
// returns an error nothing is written.
func (f *JSONFile[T]) Update(fn func(*T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.read()
	if err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return writeAtomic(f.path, v)
}

func (f *JSONFile[T]) read() (T, error) {
	v := f.empty()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return f.empty(), fmt.Errorf("%w: %s: %w", ErrCorrupt, f.path, err)
	}
	return v, nil
}

// writeAtomic encodes v to a pending file in the target directory and
// renames it over path once it is synced.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644), renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer pf.Cleanup()

	enc := json.NewEncoder(pf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// File names inside the data directory.
const (
	UsersFile       = "user_data.json"
	FeedbackFile    = "feedback_data.json"
	EmotionsFile    = "emotion_analytics.json"
	StoriesFile     = "story_analytics.json"
	AdminFile       = "admin_data.json"
	ResetTokensFile = "password_reset_tokens.json"
)

// Store groups every JSON document the application keeps.
type Store struct {
	Dir      string
	Users    *Users
	Feedback *FeedbackLog
	Emotions *Counter
	Stories  *Counter
	Admin    *Admin
	Tokens   *ResetTokens
}

// Open prepares the stores under dir, creating it if needed. Files are
// created lazily on first write.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Store{
		Dir:      dir,
		Users:    NewUsers(filepath.Join(dir, UsersFile)),
		Feedback: NewFeedbackLog(filepath.Join(dir, FeedbackFile)),
		Emotions: NewCounter(filepath.Join(dir, EmotionsFile)),
		Stories:  NewCounter(filepath.Join(dir, StoriesFile)),
		Admin:    NewAdmin(filepath.Join(dir, AdminFile)),
		Tokens:   NewResetTokens(filepath.Join(dir, ResetTokensFile)),
	}, nil
}

// Package snippets persists shared programs in SQLite so they can be handed
// out as short /s/{id} links instead of long fragments.
package snippets

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/validation"
)

// IDLength is the length of generated snippet IDs.
const IDLength = 12

// Compressor is the subset of playground.Compressor the store needs.
type Compressor interface {
	CompressToURLSafe(s string) string
	DecompressFromURLSafe(payload string) (string, error)
}

// Snippet is a stored program.
type Snippet struct {
	ID        string
	Source    string
	CreatedAt time.Time
	Views     int64
}

// Store handles SQLite storage for snippets.
type Store struct {
	db         *sql.DB
	compressor Compressor
	mu         sync.Mutex
}

// Open opens or creates the snippet database at path. An empty path keeps
// snippets in memory for the life of the process.
func Open(path string, compressor Compressor) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed, "opening database", err)
	}
	if path == "" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed, "setting busy timeout", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snippets (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		views INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed, "creating table", err)
	}

	return &Store{db: db, compressor: compressor}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID derives the snippet ID for source. Equal sources share an ID.
func NewID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:IDLength]
}

// Save stores source and returns its ID. Saving the same source twice is a
// no-op that returns the same ID.
func (s *Store) Save(ctx context.Context, source string) (string, error) {
	id := NewID(source)
	payload := s.compressor.CompressToURLSafe(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO snippets (id, payload, created_at) VALUES (?, ?, ?)",
		id, payload, time.Now().Unix())
	if err != nil {
		return "", errors.NewStorageError(errors.ErrCodeStorageFailed, "saving snippet", err)
	}

	return id, nil
}

// Get loads a snippet and counts the view.
func (s *Store) Get(ctx context.Context, id string) (*Snippet, error) {
	if err := validation.ValidateSnippetID(id); err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeSnippetNotFound, "snippet not found", err).
			WithContext("id", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		payload   string
		createdAt int64
		views     int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, created_at, views FROM snippets WHERE id = ?", id).
		Scan(&payload, &createdAt, &views)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewStorageError(errors.ErrCodeSnippetNotFound, "snippet not found", nil).
				WithContext("id", id)
		}
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed, "loading snippet", err)
	}

	source, err := s.compressor.DecompressFromURLSafe(payload)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed,
			fmt.Sprintf("snippet %s is corrupt", id), err)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE snippets SET views = views + 1 WHERE id = ?", id); err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageFailed, "counting view", err)
	}

	return &Snippet{
		ID:        id,
		Source:    source,
		CreatedAt: time.Unix(createdAt, 0),
		Views:     views + 1,
	}, nil
}

// Count returns the number of stored snippets.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snippets").Scan(&n); err != nil {
		return 0, errors.NewStorageError(errors.ErrCodeStorageFailed, "counting snippets", err)
	}
	return n, nil
}

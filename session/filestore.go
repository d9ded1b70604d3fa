package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore implements Store using a single JSON file, for deployments where
// sessions must survive a process restart. Tokens are persisted, so the data
// directory must not be world-readable.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// storedSession mirrors Session but includes the token, which Session
// deliberately never serializes.
type storedSession struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Token          string    `json:"token"`
	Watermark      string    `json:"watermark,omitempty"`
	ExpiresIn      int       `json:"expires_in"`
	CreatedAt      time.Time `json:"created_at"`
}

type fileData struct {
	Sessions []storedSession `json:"sessions"`
}

// NewFileStore creates a FileStore backed by dataDir/sessions.json.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(dataDir, "sessions.json")}, nil
}

func (s *FileStore) read() (fileData, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileData{Sessions: []storedSession{}}, nil
	}
	if err != nil {
		return fileData{}, err
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fileData{}, err
	}
	return fd, nil
}

func (s *FileStore) write(fd fileData) error {
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file then rename
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "sessions-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *FileStore) Create(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.read()
	if err != nil {
		return err
	}

	rec := storedSession{
		ID:             sess.ID,
		ConversationID: sess.ConversationID,
		Token:          sess.Token,
		Watermark:      sess.Watermark,
		ExpiresIn:      sess.ExpiresIn,
		CreatedAt:      sess.CreatedAt,
	}

	for i := range fd.Sessions {
		if fd.Sessions[i].ID == sess.ID {
			fd.Sessions[i] = rec
			return s.write(fd)
		}
	}
	fd.Sessions = append(fd.Sessions, rec)
	return s.write(fd)
}

func (s *FileStore) Get(ctx context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fd, err := s.read()
	if err != nil {
		return Session{}, err
	}

	for _, rec := range fd.Sessions {
		if rec.ID == sessionID {
			return Session{
				ID:             rec.ID,
				ConversationID: rec.ConversationID,
				Token:          rec.Token,
				Watermark:      rec.Watermark,
				ExpiresIn:      rec.ExpiresIn,
				CreatedAt:      rec.CreatedAt,
			}, nil
		}
	}
	return Session{}, ErrNotFound
}

func (s *FileStore) UpdateWatermark(ctx context.Context, sessionID, watermark string) error {
	if watermark == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.read()
	if err != nil {
		return err
	}

	for i := range fd.Sessions {
		if fd.Sessions[i].ID == sessionID {
			fd.Sessions[i].Watermark = watermark
			return s.write(fd)
		}
	}
	return ErrNotFound
}

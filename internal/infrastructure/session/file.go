package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
)

// FileStore keeps the session in a single JSON file, sealed when a Sealer is set
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *Sealer
}

// NewFileStore creates a store at path. sealer may be nil for a plain file.
func NewFileStore(path string, sealer *Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

// Path returns the session file location
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the session. A missing file yields shared.ErrNoSession.
func (s *FileStore) Get(_ context.Context) (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, shared.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	switch {
	case s.sealer != nil:
		if data, err = s.sealer.Open(data); err != nil {
			return nil, err
		}
	case IsSealed(data):
		return nil, fmt.Errorf("session file is sealed but no encryption key is configured: %w", ErrTampered)
	}

	var sess identity.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, shared.ErrNoSession
	}
	return &sess, nil
}

// Set writes the session atomically: a temp file in the same directory is
// fsynced and renamed over the old one.
func (s *FileStore) Set(_ context.Context, session *identity.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// Clear deletes the file; clearing a missing file is not an error
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

var _ identity.SessionStore = (*FileStore)(nil)

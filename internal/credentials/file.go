package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"pamana/notes/internal/model"
)

// FileStore keeps the pair in a JSON file so a new process for the same
// profile picks up the session where the last one left it.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create credentials dir")
	}
	return &FileStore{path: path}, nil
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Set(_ context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read()
	if err != nil {
		return err
	}
	return s.write(merge(current, cred))
}

func (s *FileStore) Get(_ context.Context) (model.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, err := s.read()
	if err != nil {
		return model.Credential{}, false, err
	}
	return cred, !cred.Empty(), nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove credentials")
	}
	return nil
}

func (s *FileStore) read() (model.Credential, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.Credential{}, nil
	}
	if err != nil {
		return model.Credential{}, errors.Wrap(err, "read credentials")
	}
	var cred model.Credential
	if len(data) == 0 {
		return cred, nil
	}
	if err := json.Unmarshal(data, &cred); err != nil {
		return model.Credential{}, errors.Wrap(err, "decode credentials")
	}
	return cred, nil
}

// write replaces the file through a rename so the two fields land together.
func (s *FileStore) write(cred model.Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return errors.Wrap(err, "create temp credentials")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp credentials")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "chmod credentials")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp credentials")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace credentials")
	}
	return nil
}

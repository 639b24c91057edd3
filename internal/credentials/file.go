package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// FileStore is a Store that survives process restarts by mirroring every
// mutation to a JSON file readable only by its owner.
type FileStore struct {
	*MemoryStore
	path string
}

// OpenFileStore loads the credential file at path, if any. A missing file
// yields an empty store; an unreadable one is reported.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	fs.persist = fs.write

	tok, err := tokenFromFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("No stored credentials")
	case err != nil:
		return nil, err
	default:
		fs.token = tok
		log.Debug().Str("path", path).Time("expires_at", tok.Expiry).Msg("Loaded stored credentials")
	}
	return fs, nil
}

// Path returns the backing file location.
func (fs *FileStore) Path() string { return fs.path }

func (fs *FileStore) write(tok *oauth2.Token) error {
	if tok == nil {
		if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credential file %s: %w", fs.path, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	// Write to a sibling file first so a crash never leaves a torn file.
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode credentials from file %s: %w", path, err)
	}
	return tok, nil
}

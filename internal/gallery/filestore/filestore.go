// Package filestore persists the gallery as a single gob file. Every write
// rewrites the file through a temp file and rename, so a crash leaves either
// the old or the new gallery on disk.
package filestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kozaktomas/faceid/internal/gallery"
)

// formatVersion is bumped when the on-disk record layout changes.
const formatVersion = 1

type fileHeader struct {
	Version    int
	Identities []gallery.Identity
}

// Store is a gallery.Persister backed by one file.
type Store struct {
	mu         sync.Mutex
	path       string
	identities map[string]gallery.Identity
	dirty      bool
}

// New returns a file store writing to path. The file is created on the first
// save; a missing file loads as an empty gallery.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("gallery file path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create gallery directory: %w", err)
		}
	}
	return &Store{path: path, identities: make(map[string]gallery.Identity)}, nil
}

// Load reads every identity from disk.
func (s *Store) Load(ctx context.Context) ([]gallery.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		s.identities = make(map[string]gallery.Identity)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery file: %w", err)
	}

	var header fileHeader
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode gallery file: %w", err)
	}
	if header.Version != formatVersion {
		return nil, fmt.Errorf("unsupported gallery file version %d", header.Version)
	}

	s.identities = make(map[string]gallery.Identity, len(header.Identities))
	for _, id := range header.Identities {
		if id.Key == "" {
			id.Key = gallery.NormalizeName(id.Name)
		}
		s.identities[id.Key] = id
	}
	return header.Identities, nil
}

// Save replaces the identity and rewrites the file.
func (s *Store) Save(ctx context.Context, identity gallery.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.identities[identity.Key]
	s.identities[identity.Key] = identity
	if err := s.writeLocked(); err != nil {
		if existed {
			s.identities[identity.Key] = prev
		} else {
			delete(s.identities, identity.Key)
		}
		return err
	}
	return nil
}

// Delete removes the identity and rewrites the file.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.identities[key]
	if !existed {
		return nil
	}
	delete(s.identities, key)
	if err := s.writeLocked(); err != nil {
		s.identities[key] = prev
		return err
	}
	return nil
}

// Flush rewrites the file if a previous write failed half-way.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.writeLocked()
}

// Close is a no-op; the file is closed after every write.
func (s *Store) Close() error {
	return nil
}

func (s *Store) writeLocked() error {
	keys := make([]string, 0, len(s.identities))
	for k := range s.identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := fileHeader{Version: formatVersion, Identities: make([]gallery.Identity, 0, len(keys))}
	for _, k := range keys {
		header.Identities = append(header.Identities, s.identities[k])
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(header); err != nil {
		return fmt.Errorf("failed to encode gallery: %w", err)
	}

	s.dirty = true
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp gallery file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write gallery file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync gallery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close gallery file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod gallery file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace gallery file: %w", err)
	}
	s.dirty = false
	return nil
}

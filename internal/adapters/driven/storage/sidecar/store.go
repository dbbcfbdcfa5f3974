package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.MetadataStore = (*Store)(nil)

// Store reads metadata sidecars under a library root and caches the
// current view. Deletion is the only write it performs.
type Store struct {
	root   string
	suffix string

	mu      sync.RWMutex
	records map[string]domain.DocumentRecord
	scanned bool
}

// New creates a sidecar store. An empty suffix uses domain.DefaultSidecarSuffix.
func New(root, suffix string) *Store {
	if suffix == "" {
		suffix = domain.DefaultSidecarSuffix
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Store{
		root:    filepath.Clean(root),
		suffix:  suffix,
		records: make(map[string]domain.DocumentRecord),
	}
}

// Root returns the library root directory.
func (s *Store) Root() string {
	return s.root
}

// IsSidecar reports whether path names a metadata sidecar.
func (s *Store) IsSidecar(p string) bool {
	base := filepath.Base(p)
	return strings.HasSuffix(base, s.suffix) && len(base) > len(s.suffix) && !isHidden(base)
}

// RecordID returns the record ID for a sidecar path, which may be absolute
// or relative to the root.
func (s *Store) RecordID(sidecarPath string) (string, error) {
	if !s.IsSidecar(sidecarPath) {
		return "", fmt.Errorf("%w: %s is not a sidecar file", domain.ErrInvalidInput, sidecarPath)
	}
	p := sidecarPath
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, sidecarPath, err)
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrInvalidInput, sidecarPath, s.root)
	}
	return strings.TrimSuffix(p, s.suffix), nil
}

// sidecarPath returns the file holding the record with the given ID.
func (s *Store) sidecarPath(id string) (string, error) {
	clean := path.Clean("/" + id)[1:]
	if id == "" || clean != id {
		return "", fmt.Errorf("%w: record id %q", domain.ErrInvalidInput, id)
	}
	return filepath.Join(s.root, filepath.FromSlash(id)+s.suffix), nil
}

// Read loads and validates a single sidecar without touching the cached view.
func (s *Store) Read(sidecarPath string) (*domain.DocumentRecord, error) {
	id, err := s.RecordID(sidecarPath)
	if err != nil {
		return nil, err
	}
	file, err := s.sidecarPath(id)
	if err != nil {
		return nil, err
	}
	rec, err := readFile(id, file)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Scan walks the library root and replaces the cached view with every
// valid sidecar. Malformed sidecars are logged and skipped.
func (s *Store) Scan(ctx context.Context) ([]domain.DocumentRecord, error) {
	records := make(map[string]domain.DocumentRecord)
	skipped := 0

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != s.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.IsSidecar(p) {
			return nil
		}

		id, err := s.RecordID(p)
		if err != nil {
			return err
		}
		rec, err := readFile(id, p)
		switch {
		case errors.Is(err, domain.ErrMalformedRecord):
			logger.Warn("Skipping malformed sidecar %s: %v", p, err)
			skipped++
			return nil
		case err != nil:
			return err
		}
		records[id] = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}

	s.mu.Lock()
	s.records = records
	s.scanned = true
	s.mu.Unlock()

	logger.Debug("Scanned %s: %d records, %d skipped", s.root, len(records), skipped)
	return s.sorted(), nil
}

// List returns the cached view, scanning on first use.
func (s *Store) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	s.mu.RLock()
	scanned := s.scanned
	s.mu.RUnlock()
	if !scanned {
		return s.Scan(ctx)
	}
	return s.sorted(), nil
}

// Get returns the record with the given ID, reading its sidecar when the
// store has not been scanned yet.
func (s *Store) Get(_ context.Context, id string) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	scanned := s.scanned
	s.mu.RUnlock()
	if ok {
		return &rec, nil
	}
	if scanned {
		return nil, domain.ErrNotFound
	}

	file, err := s.sidecarPath(id)
	if err != nil {
		return nil, err
	}
	rec, err = readFile(id, file)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Track refreshes the cached view with a record whose sidecar exists on
// disk. Sidecars belong to the organiser and are never rewritten here.
func (s *Store) Track(_ context.Context, record domain.DocumentRecord) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, err
	}
	file, err := s.sidecarPath(record.ID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%s: %w", record.ID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("stat sidecar %s: %w", record.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[record.ID]; ok && reflect.DeepEqual(current, record) {
		return false, nil
	}
	s.records[record.ID] = record
	return true, nil
}

// Delete removes the record's sidecar. A missing sidecar is not an error.
func (s *Store) Delete(_ context.Context, id string) error {
	file, err := s.sidecarPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete sidecar %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) sorted() []domain.DocumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DocumentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// readFile loads one sidecar. A missing updated_at falls back to the file's
// modification time.
func readFile(id, file string) (domain.DocumentRecord, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DocumentRecord{}, fmt.Errorf("%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("read %s: %w", file, err)
	}
	rec, err := decode(id, data)
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("%s: %w", id, err)
	}
	if rec.UpdatedAt.IsZero() {
		if info, statErr := os.Stat(file); statErr == nil {
			rec.UpdatedAt = info.ModTime().UTC()
		}
	}
	return rec, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

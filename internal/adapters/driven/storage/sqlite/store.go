package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.FactStore = (*Store)(nil)

// Store persists memory facts and their per-document contributions.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.docmind/data/memory.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docmind", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "memory.db")

	// WAL for concurrent readers; foreign keys are per connection so they go in the DSN.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// LoadFacts returns every stored fact ordered by bucket and key.
func (s *Store) LoadFacts(ctx context.Context) ([]driven.StoredFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.bucket, f.key, f.value, f.last_updated,
		       c.document_id, c.value, c.seq, c.updated_at
		FROM memory_facts f
		JOIN memory_fact_sources c ON c.bucket = f.bucket AND c.key = f.key
		ORDER BY f.bucket, f.key, c.document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	var facts []driven.StoredFact
	for rows.Next() {
		var (
			fact                       domain.MemoryFact
			contrib                    domain.FactContribution
			lastUpdated, sourceUpdated string
			seq                        int64
		)
		if err := rows.Scan(&fact.Bucket, &fact.Key, &fact.Value, &lastUpdated,
			&contrib.DocumentID, &contrib.Value, &seq, &sourceUpdated); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		if fact.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, fmt.Errorf("fact %s/%s: %w", fact.Bucket, fact.Key, err)
		}
		if contrib.UpdatedAt, err = parseTime(sourceUpdated); err != nil {
			return nil, fmt.Errorf("fact %s/%s: %w", fact.Bucket, fact.Key, err)
		}
		contrib.Seq = uint64(seq)

		n := len(facts)
		if n == 0 || facts[n-1].Fact.Ref() != fact.Ref() {
			facts = append(facts, driven.StoredFact{Fact: fact})
			n++
		}
		last := &facts[n-1]
		last.Fact.SourceDocumentIDs = append(last.Fact.SourceDocumentIDs, contrib.DocumentID)
		last.Contributions = append(last.Contributions, contrib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}
	return facts, nil
}

// SaveFacts upserts and deletes facts in one transaction.
func (s *Store) SaveFacts(ctx context.Context, upserts []driven.StoredFact, deletes []domain.FactRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ref := range deletes {
		if err := deleteFact(ctx, tx, ref); err != nil {
			return err
		}
	}
	for i := range upserts {
		if err := deleteFact(ctx, tx, upserts[i].Fact.Ref()); err != nil {
			return err
		}
		if err := insertFact(ctx, tx, &upserts[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReplaceAll discards every stored fact and stores facts instead, in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, facts []driven.StoredFact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_fact_sources"); err != nil {
		return fmt.Errorf("clearing fact sources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_facts"); err != nil {
		return fmt.Errorf("clearing facts: %w", err)
	}
	for i := range facts {
		if err := insertFact(ctx, tx, &facts[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func deleteFact(ctx context.Context, tx *sql.Tx, ref domain.FactRef) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM memory_fact_sources WHERE bucket = ? AND key = ?", ref.Bucket, ref.Key); err != nil {
		return fmt.Errorf("deleting sources of %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM memory_facts WHERE bucket = ? AND key = ?", ref.Bucket, ref.Key); err != nil {
		return fmt.Errorf("deleting fact %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return nil
}

func insertFact(ctx context.Context, tx *sql.Tx, sf *driven.StoredFact) error {
	f := &sf.Fact
	if len(sf.Contributions) == 0 {
		return fmt.Errorf("%w: fact %s/%s has no sources", domain.ErrInvalidInput, f.Bucket, f.Key)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO memory_facts (bucket, key, value, last_updated) VALUES (?, ?, ?, ?)",
		f.Bucket, f.Key, f.Value, formatTime(f.LastUpdated)); err != nil {
		return fmt.Errorf("saving fact %s/%s: %w", f.Bucket, f.Key, err)
	}
	for _, c := range sf.Contributions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_fact_sources (bucket, key, document_id, value, seq, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.Bucket, f.Key, c.DocumentID, c.Value, int64(c.Seq), formatTime(c.UpdatedAt)); err != nil {
			return fmt.Errorf("saving source %s of %s/%s: %w", c.DocumentID, f.Bucket, f.Key, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t.UTC(), nil
}

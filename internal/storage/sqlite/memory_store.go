// Package sqlite provides the default, file-backed implementation of
// storage.MemoryStore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/pkg/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err) // embedded path is fixed at compile time
	}
	return sub
}

const memoryColumns = "id, title, category, action_items, mood, transcription, created_at"

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// NewMemoryStore opens the database at dsn and applies pending migrations.
// If the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewMemoryStore(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*MemoryStore, error) {
	log := logging.OrNop(logger)

	store, err := openMemoryStore(ctx, dsn, log)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, log)

	store, retryErr := openMemoryStore(ctx, dsn, log)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Warnw("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

// openMemoryStore opens a SQLite database, configures WAL mode, and migrates
// the schema.
func openMemoryStore(ctx context.Context, dsn string, log *zap.SugaredLogger) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection also
	// keeps an in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	mgr, err := storage.NewMigrationManager(ctx, db, Migrations(), storage.QuestionPlaceholder)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}
	applied, err := mgr.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}
	if applied > 0 {
		log.Infow("sqlite: applied migrations", "count", applied)
	}

	return &MemoryStore{db: db, log: log, now: time.Now}, nil
}

// Save inserts a new memory inside a transaction.
func (s *MemoryStore) Save(ctx context.Context, analysis types.Analysis, transcription string) (*types.Memory, error) {
	memory := storage.NewMemory(analysis, transcription, s.now())

	actionItems, err := storage.EncodeActionItems(memory.ActionItems)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO memories ("+memoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		memory.ID,
		memory.Title,
		memory.Category,
		actionItems,
		memory.Mood,
		memory.Transcription,
		memory.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit memory: %w", err)
	}

	s.log.Debugw("memory saved", "id", memory.ID, "category", memory.Category)
	return memory, nil
}

// Get retrieves a memory by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if err := storage.ValidateID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id = ?", id)
	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return memory, nil
}

// List returns every memory, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories ORDER BY created_at DESC, seq DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	memories := []*types.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return memories, nil
}

// Delete permanently removes a memory.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := storage.ValidateID(id); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	s.log.Debugw("memory deleted", "id", id)
	return nil
}

// Close closes the database.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		m           types.Memory
		actionItems []byte
		createdAt   int64
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Category, &actionItems, &m.Mood, &m.Transcription, &createdAt); err != nil {
		return nil, err
	}

	items, err := storage.DecodeActionItems(actionItems)
	if err != nil {
		return nil, err
	}
	m.ActionItems = items
	m.CreatedAt = storage.FromUnixNano(createdAt)
	return &m, nil
}

// dbPathFromDSN extracts the database file path from a DSN. In-memory
// databases return "".
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" || u.Query().Get("mode") == "memory" {
			return ""
		}
		return path
	}

	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist and no process holds the
// database open. Without lsof it conservatively reports false.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when no process has the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string, log *zap.SugaredLogger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnw("sqlite: failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Compile-time assertion.
var _ storage.MemoryStore = (*MemoryStore)(nil)

// Package sqlitestore persists the engine's objects and operation heads in a
// SQLite database inside the workspace's .weft directory.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/engine/sqlitestore/migrations"
	_ "modernc.org/sqlite"
)

// FileName is the database file name inside the workspace's .weft directory.
const FileName = "store.db"

// Store is an engine.Store backed by SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the store at path, creating it and applying migrations as needed.
// A new store has the root operation as its only operation head.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB}
	if err := s.seedOpHeads(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) seedOpHeads() error {
	var n int
	if err := s.sqlDB.QueryRow(`SELECT COUNT(*) FROM op_heads`).Scan(&n); err != nil {
		return fmt.Errorf("count op heads: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.sqlDB.Exec(`INSERT INTO op_heads (id) VALUES (?)`, string(engine.RootOperationID)); err != nil {
		return fmt.Errorf("seed op heads: %w", err)
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) readJSON(table, id string, v any) error {
	var data []byte
	err := s.sqlDB.QueryRow(`SELECT data FROM `+table+` WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, engine.ErrObjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", table, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return nil
}

func (s *Store) ReadCommit(id engine.CommitID) (*engine.Commit, error) {
	if id == engine.RootCommitID {
		return engine.RootCommit(), nil
	}
	var c engine.Commit
	if err := s.readJSON("commits", string(id), &c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

func (s *Store) WriteCommit(c *engine.Commit) (engine.CommitID, error) {
	id := c.ComputeID()
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode commit: %w", err)
	}
	_, err = s.sqlDB.Exec(`INSERT OR IGNORE INTO commits (id, change_id, data) VALUES (?, ?, ?)`,
		string(id), string(c.ChangeID), data)
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}
	return id, nil
}

func (s *Store) ReadTree(id engine.TreeID) (*engine.Tree, error) {
	if id == engine.EmptyTreeID {
		return engine.NewTree(), nil
	}
	t := engine.NewTree()
	if err := s.readJSON("trees", string(id), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) WriteTree(t *engine.Tree) (engine.TreeID, error) {
	id := t.ID()
	if id == engine.EmptyTreeID {
		return id, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode tree: %w", err)
	}
	if _, err := s.sqlDB.Exec(`INSERT OR IGNORE INTO trees (id, data) VALUES (?, ?)`, string(id), data); err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}
	return id, nil
}

func (s *Store) ReadBlob(id engine.BlobID) ([]byte, error) {
	var data []byte
	err := s.sqlDB.QueryRow(`SELECT data FROM blobs WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", id, engine.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *Store) WriteBlob(data []byte) (engine.BlobID, error) {
	id := engine.HashBlob(data)
	if data == nil {
		data = []byte{}
	}
	if _, err := s.sqlDB.Exec(`INSERT OR IGNORE INTO blobs (id, data) VALUES (?, ?)`, string(id), data); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return id, nil
}

func (s *Store) ReadOperation(id engine.OperationID) (*engine.Operation, error) {
	if id == engine.RootOperationID {
		return engine.RootOperation(), nil
	}
	var op engine.Operation
	if err := s.readJSON("operations", string(id), &op); err != nil {
		return nil, err
	}
	op.ID = id
	if op.View == nil {
		op.View = engine.NewView()
	}
	return &op, nil
}

func (s *Store) WriteOperation(op *engine.Operation) (engine.OperationID, error) {
	id := op.ComputeID()
	data, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("encode operation: %w", err)
	}
	_, err = s.sqlDB.Exec(`INSERT OR IGNORE INTO operations (id, data, created_at) VALUES (?, ?, ?)`,
		string(id), data, time.Now().UTC().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("write operation: %w", err)
	}
	return id, nil
}

func (s *Store) OpHeads() ([]engine.OperationID, error) {
	rows, err := s.sqlDB.Query(`SELECT id FROM op_heads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list op heads: %w", err)
	}
	defer rows.Close()

	var heads []engine.OperationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan op head: %w", err)
		}
		heads = append(heads, engine.OperationID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate op heads: %w", err)
	}
	return heads, nil
}

func (s *Store) UpdateOpHeads(old []engine.OperationID, newHead engine.OperationID) error {
	tx, err := s.sqlDB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin op heads update: %w", err)
	}
	for _, id := range old {
		if _, err := tx.Exec(`DELETE FROM op_heads WHERE id = ?`, string(id)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("remove op head: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO op_heads (id) VALUES (?)`, string(newHead)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("add op head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit op heads update: %w", err)
	}
	return nil
}

func (s *Store) GitMapping(id engine.CommitID) (string, bool, error) {
	var sha string
	err := s.sqlDB.QueryRow(`SELECT git_sha FROM git_map WHERE commit_id = ?`, string(id)).Scan(&sha)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read git mapping: %w", err)
	}
	return sha, true, nil
}

func (s *Store) CommitForGit(sha string) (engine.CommitID, bool, error) {
	var id string
	err := s.sqlDB.QueryRow(`SELECT commit_id FROM git_map WHERE git_sha = ?`, sha).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read git mapping: %w", err)
	}
	return engine.CommitID(id), true, nil
}

func (s *Store) SetGitMapping(id engine.CommitID, sha string) error {
	_, err := s.sqlDB.Exec(`INSERT OR REPLACE INTO git_map (commit_id, git_sha) VALUES (?, ?)`, string(id), sha)
	if err != nil {
		return fmt.Errorf("write git mapping: %w", err)
	}
	return nil
}

var _ engine.Store = (*Store)(nil)

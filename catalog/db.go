/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"go.uber.org/zap"
)

//go:embed schema.sql
var createDB string

// SQLiteStore is a Store backed by a sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the catalog database
// at dbPath and provisions its schema.
func OpenSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database folder: %w", err)
		}
	}
	db, err := openDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err = provisionDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func openDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	defer func() {
		if err != nil && db != nil {
			db.Close()
		}
	}()

	db, err = sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var version string
	err = db.QueryRowContext(ctx, "SELECT sqlite_version() AS version").Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite version: %w", err)
	}
	Log.Debug("using sqlite", zap.String("version", version), zap.String("path", dbPath))

	return db, nil
}

func provisionDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createDB)
	if err != nil {
		return fmt.Errorf("setting up database: %w", err)
	}

	// the catalog gets a persistent ID the first time it is created
	_, err = db.ExecContext(ctx, `INSERT OR IGNORE INTO repo (key, value) VALUES (?, ?), (?, ?)`,
		"id", uuid.NewString(),
		"version", 1,
	)
	if err != nil {
		return fmt.Errorf("persisting catalog ID and version: %w", err)
	}

	return nil
}

// ID returns the persistent identifier of the catalog.
func (s *SQLiteStore) ID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM repo WHERE key='id' LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("loading catalog ID: %w", err)
	}
	return id, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ListMediaItems(ctx context.Context) ([]MediaItem, error) {
	return queryDocs[MediaItem](ctx, s.db, `SELECT data FROM media_items ORDER BY rowid`)
}

func (s *SQLiteStore) ListMediaItemsInAlbum(ctx context.Context, albumID string) ([]MediaItem, error) {
	return queryDocs[MediaItem](ctx, s.db, `SELECT data FROM media_items WHERE album_id=? ORDER BY rowid`, albumID)
}

func (s *SQLiteStore) GetMediaItem(ctx context.Context, id string) (MediaItem, error) {
	return queryDoc[MediaItem](ctx, s.db, `SELECT data FROM media_items WHERE id=? LIMIT 1`, id)
}

func (s *SQLiteStore) UpsertMediaItem(ctx context.Context, item MediaItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding media item %s: %w", item.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO media_items (id, album_id, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET album_id=excluded.album_id, data=excluded.data`,
		item.ID, item.AlbumID, string(data))
	if err != nil {
		return fmt.Errorf("upserting media item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteMediaItems deletes all the rows in one transaction.
func (s *SQLiteStore) DeleteMediaItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// keep well under sqlite's host parameter limit
	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		chunk := ids[start:min(start+chunkSize, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		q := `DELETE FROM media_items WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("deleting media items: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) PutDeletedMediaItem(ctx context.Context, item DeletedMediaItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding deleted media item %s: %w", item.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO deleted_media_items (id, deleted_at, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET deleted_at=excluded.deleted_at, data=excluded.data`,
		item.ID, item.DeletedAt.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("archiving media item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDeletedMediaItem(ctx context.Context, id string) (DeletedMediaItem, error) {
	return queryDoc[DeletedMediaItem](ctx, s.db, `SELECT data FROM deleted_media_items WHERE id=? LIMIT 1`, id)
}

func (s *SQLiteStore) ListDeletedMediaItems(ctx context.Context) ([]DeletedMediaItem, error) {
	return queryDocs[DeletedMediaItem](ctx, s.db, `SELECT data FROM deleted_media_items ORDER BY rowid`)
}

func (s *SQLiteStore) RemoveDeletedMediaItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM deleted_media_items WHERE id=?`, id); err != nil {
		return fmt.Errorf("removing deleted media item %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ClearDeletedMediaItems(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM deleted_media_items`); err != nil {
		return fmt.Errorf("clearing deleted media items: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutKeyword(ctx context.Context, kw Keyword) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO keywords (id, label, type) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, type=excluded.type`,
		kw.KeywordID, kw.Label, kw.Type)
	if err != nil {
		return fmt.Errorf("saving keyword %s: %w", kw.KeywordID, err)
	}
	return nil
}

func (s *SQLiteStore) ListKeywords(ctx context.Context) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, type FROM keywords ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	var out []Keyword
	for rows.Next() {
		var kw Keyword
		if err := rows.Scan(&kw.KeywordID, &kw.Label, &kw.Type); err != nil {
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutKeywordNode(ctx context.Context, node KeywordNode) error {
	children, err := json.Marshal(node.ChildrenNodeIDs)
	if err != nil {
		return fmt.Errorf("encoding children of keyword node %s: %w", node.NodeID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO keyword_nodes (id, keyword_id, parent_node_id, children) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET keyword_id=excluded.keyword_id, parent_node_id=excluded.parent_node_id, children=excluded.children`,
		node.NodeID, node.KeywordID, node.ParentNodeID, string(children))
	if err != nil {
		return fmt.Errorf("saving keyword node %s: %w", node.NodeID, err)
	}
	return nil
}

func (s *SQLiteStore) GetKeywordNode(ctx context.Context, nodeID string) (KeywordNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, keyword_id, parent_node_id, children FROM keyword_nodes WHERE id=? LIMIT 1`, nodeID)
	node, err := scanKeywordNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return KeywordNode{}, ErrNotFound
	}
	return node, err
}

func (s *SQLiteStore) ListKeywordNodes(ctx context.Context) ([]KeywordNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, keyword_id, parent_node_id, children FROM keyword_nodes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying keyword nodes: %w", err)
	}
	defer rows.Close()

	var out []KeywordNode
	for rows.Next() {
		node, err := scanKeywordNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

func scanKeywordNode(row interface{ Scan(dest ...any) error }) (KeywordNode, error) {
	var node KeywordNode
	var children string
	if err := row.Scan(&node.NodeID, &node.KeywordID, &node.ParentNodeID, &children); err != nil {
		return KeywordNode{}, err
	}
	if err := json.Unmarshal([]byte(children), &node.ChildrenNodeIDs); err != nil {
		return KeywordNode{}, fmt.Errorf("decoding children of keyword node %s: %w", node.NodeID, err)
	}
	return node, nil
}

func (s *SQLiteStore) PutTakeout(ctx context.Context, t Takeout) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO takeouts (id, label, album_name, path) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, album_name=excluded.album_name, path=excluded.path`,
		t.ID, t.Label, t.AlbumName, t.Path)
	if err != nil {
		return fmt.Errorf("saving takeout %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTakeout(ctx context.Context, id string) (Takeout, error) {
	var t Takeout
	err := s.db.QueryRowContext(ctx, `SELECT id, label, album_name, path FROM takeouts WHERE id=? LIMIT 1`, id).
		Scan(&t.ID, &t.Label, &t.AlbumName, &t.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return Takeout{}, ErrNotFound
	}
	if err != nil {
		return Takeout{}, fmt.Errorf("loading takeout %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTakeouts(ctx context.Context) ([]Takeout, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, album_name, path FROM takeouts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying takeouts: %w", err)
	}
	defer rows.Close()

	var out []Takeout
	for rows.Next() {
		var t Takeout
		if err := rows.Scan(&t.ID, &t.Label, &t.AlbumName, &t.Path); err != nil {
			return nil, fmt.Errorf("scanning takeout: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// queryDoc loads a single JSON document row.
func queryDoc[T any](ctx context.Context, db *sql.DB, q string, args ...any) (T, error) {
	var doc T
	var data string
	err := db.QueryRowContext(ctx, q, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, ErrNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("querying row: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return doc, fmt.Errorf("decoding row: %w", err)
	}
	return doc, nil
}

// queryDocs loads every JSON document row the query returns.
func queryDocs[T any](ctx context.Context, db *sql.DB, q string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var doc T
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)

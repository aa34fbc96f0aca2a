package mbtiles

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// DefaultBatchSize is the number of tiles buffered before a write transaction.
const DefaultBatchSize = 100

// Store is a read-write tile cache. Writes are buffered and committed in
// batches; buffered tiles are visible to Get before they are flushed.
type Store struct {
	db        *sql.DB
	pending   map[tile.Coords][]byte
	path      string
	batchSize int
	readOnly  bool
	mu        sync.Mutex
}

// Open opens the cache at path, creating the file and schema if needed.
// Non-empty metadata fields overwrite the stored ones.
func Open(path string, meta Metadata) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas and avoids SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := upsertMetadata(db, meta); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	return &Store{
		db:        db,
		path:      path,
		pending:   make(map[tile.Coords][]byte),
		batchSize: DefaultBatchSize,
	}, nil
}

// OpenReadOnly opens an existing cache for serving. Put fails on it.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tiles'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database %s does not contain a tiles table", path)
	}

	return &Store{db: db, path: path, readOnly: true}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS metadata_index ON metadata (name);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func upsertMetadata(db *sql.DB, meta Metadata) error {
	stmt, err := db.Prepare("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range meta.ToMap() {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Put adds a tile. The batch is committed once it reaches the batch size.
func (s *Store) Put(c tile.Coords, data []byte) error {
	if s.readOnly {
		return fmt.Errorf("cache %s is read-only", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[c] = append([]byte(nil), data...)
	if len(s.pending) >= s.batchSize {
		return s.flushLocked()
	}
	return nil
}

// Get returns the raw tile bytes, or an error wrapping ErrTileNotFound.
func (s *Store) Get(c tile.Coords) ([]byte, error) {
	s.mu.Lock()
	if data, ok := s.pending[c]; ok {
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		c.Z, c.X, c.TMSRow(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrTileNotFound, c.Z, c.X, c.Y)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile %d/%d/%d: %w", c.Z, c.X, c.Y, err)
	}

	if isGzip(data) {
		data, err = gzipDecompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress tile %d/%d/%d: %w", c.Z, c.X, c.Y, err)
		}
	}
	return data, nil
}

// Has reports whether the tile is cached.
func (s *Store) Has(c tile.Coords) (bool, error) {
	_, err := s.Get(c)
	if errors.Is(err, ErrTileNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Flush commits any buffered tiles.
func (s *Store) Flush() error {
	if s.readOnly {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked must be called with s.mu held.
func (s *Store) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for c, data := range s.pending {
		if _, err := stmt.Exec(c.Z, c.X, c.TMSRow(), data); err != nil {
			return fmt.Errorf("failed to insert tile %d/%d/%d: %w", c.Z, c.X, c.Y, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	clear(s.pending)
	return nil
}

// Metadata reads the metadata table.
func (s *Store) Metadata() (Metadata, error) {
	rows, err := s.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		values[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}

	return metadataFromMap(values), nil
}

// ZoomCount is the number of cached tiles at one zoom level.
type ZoomCount struct {
	Zoom  int
	Tiles int
}

// Stats returns the number of flushed tiles per zoom level, lowest zoom first.
func (s *Store) Stats() ([]ZoomCount, error) {
	rows, err := s.db.Query("SELECT zoom_level, COUNT(*) FROM tiles GROUP BY zoom_level ORDER BY zoom_level")
	if err != nil {
		return nil, fmt.Errorf("failed to query tile counts: %w", err)
	}
	defer rows.Close()

	var out []ZoomCount
	for rows.Next() {
		var zc ZoomCount
		if err := rows.Scan(&zc.Zoom, &zc.Tiles); err != nil {
			return nil, fmt.Errorf("failed to scan tile count: %w", err)
		}
		out = append(out, zc)
	}
	return out, rows.Err()
}

// Close flushes any remaining tiles and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func isGzip(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

package vector

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"forest/internal/logging"
	"forest/internal/types"
)

// SQLiteVecIndex persists vectors in a SQLite database. When the build is
// compiled with the sqlite_vec tag the sqlite-vec extension provides
// vec_distance_cosine in SQL; otherwise distances are computed in Go over
// a full scan, which is fine at forest scale (hundreds of vectors per
// project).
type SQLiteVecIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	hasVec bool
}

// OpenSQLiteVec opens (or creates) the vector database at path.
func OpenSQLiteVec(path string) (*SQLiteVecIndex, error) {
	timer := logging.StartTimer(logging.CategoryVector, "OpenSQLiteVec")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify vector db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vectors table: %w", err)
	}

	idx := &SQLiteVecIndex{db: db, hasVec: detectVecExtension(db)}
	logging.Vector("sqlitevec index opened at %s (extension: %v)", path, idx.hasVec)
	return idx, nil
}

// detectVecExtension probes for the sqlite-vec extension.
func detectVecExtension(db *sql.DB) bool {
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return false
	}
	logging.VectorDebug("sqlite-vec extension available: %s", version)
	return true
}

func (s *SQLiteVecIndex) Upsert(id string, vec []float32, metadata map[string]string) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO vectors (id, embedding, metadata) VALUES (?, ?, ?)",
		id, encodeFloat32Blob(vec), string(metaJSON),
	)
	if err != nil {
		return types.VectorUnavailable(err)
	}
	return nil
}

func (s *SQLiteVecIndex) Query(vec []float32, opts QueryOpts) ([]Match, error) {
	if opts.K <= 0 {
		opts.K = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hasVec {
		return s.queryWithExtension(vec, opts)
	}
	return s.queryScan(vec, opts)
}

// queryWithExtension lets sqlite-vec order rows by distance; iteration
// stops once K post-filter matches are collected.
func (s *SQLiteVecIndex) queryWithExtension(vec []float32, opts QueryOpts) ([]Match, error) {
	rows, err := s.db.Query(`
		SELECT id, metadata, vec_distance_cosine(embedding, ?) AS distance
		FROM vectors
		ORDER BY distance ASC, id ASC`,
		encodeFloat32Blob(vec),
	)
	if err != nil {
		return nil, types.VectorUnavailable(err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, metaJSON string
		var distance float64
		if err := rows.Scan(&id, &metaJSON, &distance); err != nil {
			logging.Get(logging.CategoryVector).Warnf("failed to scan vector row: %v", err)
			continue
		}
		score := clampScore(1 - distance)
		if score < opts.Threshold {
			// Rows are distance-ordered; everything after is worse.
			break
		}
		meta := map[string]string{}
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		if !matchesFilter(meta, opts.Filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: meta})
		if len(matches) >= opts.K {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.VectorUnavailable(err)
	}
	return matches, nil
}

// queryScan computes cosine similarity in Go over a full table scan.
func (s *SQLiteVecIndex) queryScan(vec []float32, opts QueryOpts) ([]Match, error) {
	rows, err := s.db.Query("SELECT id, embedding, metadata FROM vectors")
	if err != nil {
		return nil, types.VectorUnavailable(err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &blob, &metaJSON); err != nil {
			logging.Get(logging.CategoryVector).Warnf("failed to scan vector row: %v", err)
			continue
		}
		stored := decodeFloat32Blob(blob)
		cos, ok := cosine(vec, stored)
		if !ok {
			continue
		}
		score := clampScore(cos)
		if score < opts.Threshold {
			continue
		}
		meta := map[string]string{}
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		if !matchesFilter(meta, opts.Filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, types.VectorUnavailable(err)
	}

	sortMatches(matches)
	if len(matches) > opts.K {
		matches = matches[:opts.K]
	}
	return matches, nil
}

func (s *SQLiteVecIndex) List(filter map[string]string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, metadata FROM vectors ORDER BY id ASC")
	if err != nil {
		return nil, types.VectorUnavailable(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, metaJSON string
		if err := rows.Scan(&id, &metaJSON); err != nil {
			continue
		}
		meta := map[string]string{}
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		if matchesFilter(meta, filter) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.VectorUnavailable(err)
	}
	return ids, nil
}

func (s *SQLiteVecIndex) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM vectors WHERE id = ?", id); err != nil {
		return types.VectorUnavailable(err)
	}
	return nil
}

func (s *SQLiteVecIndex) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.Ping(); err != nil {
		return types.VectorUnavailable(err)
	}
	return nil
}

func (s *SQLiteVecIndex) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		return Stats{}, types.VectorUnavailable(err)
	}
	return Stats{Provider: "sqlitevec", Count: count}, nil
}

func (s *SQLiteVecIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// encodeFloat32Blob serializes a vector as little-endian float32 bytes,
// the wire format sqlite-vec expects.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Blob(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		af := float64(a[i])
		bf := float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

package alignment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// storeTimeLayout is fixed-width so lexical order matches chronological order.
const storeTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the SQLite history of every alignment check.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS alignment_checks (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		action_description TEXT NOT NULL,
		action_type TEXT NOT NULL,
		level TEXT NOT NULL,
		confidence REAL NOT NULL,
		requires_user_input INTEGER NOT NULL,
		blocking INTEGER NOT NULL,
		drift_types_json TEXT,
		concerns_json TEXT,
		recommendations_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_checks_timestamp ON alignment_checks(timestamp);
	CREATE INDEX IF NOT EXISTS idx_checks_level ON alignment_checks(level);
	`)
	return err
}

// RecordCheck stores one check.
func (s *Store) RecordCheck(c *Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	driftJSON, _ := json.Marshal(c.DriftTypes)
	concernsJSON, _ := json.Marshal(c.Concerns)
	recsJSON, _ := json.Marshal(c.Recommendations)

	_, err := s.db.Exec(`
		INSERT INTO alignment_checks (id, timestamp, action_description, action_type,
			level, confidence, requires_user_input, blocking,
			drift_types_json, concerns_json, recommendations_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Timestamp.UTC().Format(storeTimeLayout), c.ActionDescription, c.ActionType,
		string(c.Level), c.Confidence, c.RequiresUserInput, c.Blocking,
		string(driftJSON), string(concernsJSON), string(recsJSON))
	if err != nil {
		return fmt.Errorf("failed to record alignment check: %w", err)
	}
	return nil
}

// History returns up to limit checks, newest first.
func (s *Store) History(limit int) ([]Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, timestamp, action_description, action_type, level, confidence,
			requires_user_input, blocking, drift_types_json, concerns_json, recommendations_json
		FROM alignment_checks
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := []Check{}
	for rows.Next() {
		var c Check
		var ts, level string
		var driftJSON, concernsJSON, recsJSON sql.NullString
		if err := rows.Scan(&c.ID, &ts, &c.ActionDescription, &c.ActionType, &level,
			&c.Confidence, &c.RequiresUserInput, &c.Blocking,
			&driftJSON, &concernsJSON, &recsJSON); err != nil {
			return nil, fmt.Errorf("scan alignment check: %w", err)
		}
		c.Level = Level(level)
		if t, err := time.Parse(storeTimeLayout, ts); err == nil {
			c.Timestamp = t
		}
		c.DriftTypes = []DriftType{}
		c.Concerns = []string{}
		c.Recommendations = []string{}
		if driftJSON.Valid {
			json.Unmarshal([]byte(driftJSON.String), &c.DriftTypes)
		}
		if concernsJSON.Valid {
			json.Unmarshal([]byte(concernsJSON.String), &c.Concerns)
		}
		if recsJSON.Valid {
			json.Unmarshal([]byte(recsJSON.String), &c.Recommendations)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// LevelCounts returns the number of stored checks per level.
func (s *Store) LevelCounts() (map[Level]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT level, COUNT(*) FROM alignment_checks GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Level]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[Level(level)] = n
	}
	return counts, rows.Err()
}

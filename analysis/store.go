package analysis

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// Store: persistent idiom statistics
// ---------------------------------------------------------------------------

// Store accumulates idiom counts across analyzer runs in a sqlite
// database, so a corpus of bytecode files can be profiled incrementally.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS idioms (
	bytes BLOB PRIMARY KEY,
	text  TEXT NOT NULL,
	width INTEGER NOT NULL,
	count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	program TEXT NOT NULL
);
`

// OpenStore opens (creating if needed) an idiom statistics database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("analysis: open store %s: %w", path, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("analysis: init store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordReport folds one report's counts into the store.
func (s *Store) RecordReport(program string, r *Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("analysis: record report: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO runs (program) VALUES (?)`, program); err != nil {
		return fmt.Errorf("analysis: record report: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO idioms (bytes, text, width, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(bytes) DO UPDATE SET count = count + excluded.count`)
	if err != nil {
		return fmt.Errorf("analysis: record report: %w", err)
	}
	defer stmt.Close()

	for _, list := range [][]Idiom{r.Unigrams, r.Bigrams} {
		for _, e := range list {
			if _, err := stmt.Exec(e.Bytes, e.Text, e.Width, e.Count); err != nil {
				return fmt.Errorf("analysis: record report: %w", err)
			}
		}
	}
	return tx.Commit()
}

// TopIdioms returns the highest-count idioms accumulated so far.
func (s *Store) TopIdioms(limit int) ([]Idiom, error) {
	rows, err := s.db.Query(`
		SELECT bytes, text, width, count FROM idioms
		ORDER BY count DESC, text ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("analysis: top idioms: %w", err)
	}
	defer rows.Close()

	var out []Idiom
	for rows.Next() {
		var e Idiom
		if err := rows.Scan(&e.Bytes, &e.Text, &e.Width, &e.Count); err != nil {
			return nil, fmt.Errorf("analysis: top idioms: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

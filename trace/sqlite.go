package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    name     TEXT NOT NULL,
    taken_at TEXT NOT NULL,
    value    TEXT,
    error    TEXT
);
CREATE INDEX IF NOT EXISTS samples_name ON samples (name);
`

// SQLiteSink persists samples to a SQLite database. Values are stored as JSON.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens or creates the database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases alive between statements
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(name string, sample Sample) error {
	var value, errText sql.NullString
	if sample.Err != "" {
		errText = sql.NullString{String: sample.Err, Valid: true}
	} else {
		raw, err := json.Marshal(sample.Value)
		if err != nil {
			return fmt.Errorf("failed to encode sample: %w", err)
		}
		value = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.Exec(
		"INSERT INTO samples (name, taken_at, value, error) VALUES (?, ?, ?, ?)",
		name, sample.Time.UTC().Format(time.RFC3339Nano), value, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Samples returns the samples recorded under name, oldest first. Values come
// back as decoded JSON (numbers are float64, pairs are []any).
func (s *SQLiteSink) Samples(name string) ([]Sample, error) {
	rows, err := s.db.Query("SELECT taken_at, value, error FROM samples WHERE name = ? ORDER BY id", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			takenAt        string
			value, errText sql.NullString
		)
		if err := rows.Scan(&takenAt, &value, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		var sample Sample
		if sample.Time, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", takenAt, err)
		}
		if errText.Valid {
			sample.Err = errText.String
		} else if value.Valid {
			if err := json.Unmarshal([]byte(value.String), &sample.Value); err != nil {
				return nil, fmt.Errorf("bad value %q: %w", value.String, err)
			}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Package store persists call analytics to SQLite and implements the
// transactional commit discipline for File/Topic/Utterance rows.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS Topic (
	ID   INTEGER PRIMARY KEY AUTOINCREMENT,
	Name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS File (
	ID               INTEGER PRIMARY KEY AUTOINCREMENT,
	Name             TEXT NOT NULL,
	Extension        TEXT,
	Path             TEXT,
	Rate             INTEGER,
	Channels         INTEGER,
	Duration         REAL NOT NULL,
	RMSLoudness      REAL,
	ZeroCrossingRate REAL,
	SpectralCentroid REAL,
	EQ_20_250_Hz     REAL,
	EQ_250_2000_Hz   REAL,
	EQ_2000_6000_Hz  REAL,
	EQ_6000_20000_Hz REAL,
	MFCC_1  REAL, MFCC_2  REAL, MFCC_3  REAL, MFCC_4  REAL, MFCC_5  REAL,
	MFCC_6  REAL, MFCC_7  REAL, MFCC_8  REAL, MFCC_9  REAL, MFCC_10 REAL,
	MFCC_11 REAL, MFCC_12 REAL, MFCC_13 REAL,
	Summary  TEXT NOT NULL DEFAULT '',
	Conflict INTEGER NOT NULL DEFAULT 0,
	Silence  REAL NOT NULL DEFAULT 0,
	TopicID  INTEGER NOT NULL REFERENCES Topic(ID)
);

CREATE TABLE IF NOT EXISTS Utterance (
	ID        INTEGER PRIMARY KEY AUTOINCREMENT,
	FileID    INTEGER NOT NULL REFERENCES File(ID) ON DELETE CASCADE,
	Speaker   TEXT NOT NULL,
	Sequence  INTEGER NOT NULL,
	StartTime REAL NOT NULL,
	EndTime   REAL NOT NULL,
	Content   TEXT NOT NULL,
	Sentiment TEXT NOT NULL DEFAULT 'Neutral',
	Profane   INTEGER NOT NULL DEFAULT 0,
	UNIQUE (FileID, Sequence)
);

CREATE TABLE IF NOT EXISTS Job (
	ID           INTEGER PRIMARY KEY AUTOINCREMENT,
	FileURL      TEXT NOT NULL,
	FileName     TEXT NOT NULL DEFAULT '',
	Status       TEXT NOT NULL DEFAULT 'pending',
	ResultFileID INTEGER REFERENCES File(ID),
	ErrorMessage TEXT NOT NULL DEFAULT '',
	CreatedAt    TEXT NOT NULL,
	UpdatedAt    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_utterance_file ON Utterance(FileID, Sequence);
CREATE INDEX IF NOT EXISTS idx_job_created ON Job(CreatedAt DESC);
`

// Open opens (creating if necessary) the database at path with WAL and a
// busy timeout, enables foreign keys, and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

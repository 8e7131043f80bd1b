package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Commit writes one call record atomically: topic resolve-or-insert, File
// insert, then the utterances in sequence order. Either everything commits
// or nothing does. Transient lock/conflict errors are retried once before
// being surfaced to the caller.
func (s *Store) Commit(ctx context.Context, rec CallRecord) (int64, error) {
	var fileID int64

	op := func() error {
		id, err := s.commitOnce(ctx, rec)
		if err != nil {
			if isTransient(err) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		fileID = id
		return nil
	}

	// One retry on transient conflicts, per the persistence contract.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return 0, err
	}
	return fileID, nil
}

func (s *Store) commitOnce(ctx context.Context, rec CallRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	topicID, err := resolveTopicTx(ctx, tx, rec.TopicName)
	if err != nil {
		return 0, err
	}

	f := rec.File
	res, err := tx.ExecContext(ctx, `
		INSERT INTO File (
			Name, Extension, Path, Rate, Channels, Duration,
			RMSLoudness, ZeroCrossingRate, SpectralCentroid,
			EQ_20_250_Hz, EQ_250_2000_Hz, EQ_2000_6000_Hz, EQ_6000_20000_Hz,
			MFCC_1, MFCC_2, MFCC_3, MFCC_4, MFCC_5, MFCC_6, MFCC_7,
			MFCC_8, MFCC_9, MFCC_10, MFCC_11, MFCC_12, MFCC_13,
			Summary, Conflict, Silence, TopicID
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.Name, f.Extension, f.Path, f.Rate, f.Channels, f.Duration,
		f.Features.RMSLoudness, f.Features.ZeroCrossingRate, f.Features.SpectralCentroid,
		f.Features.EQ20_250, f.Features.EQ250_2000, f.Features.EQ2000_6000, f.Features.EQ6000_20000,
		f.Features.MFCC[0], f.Features.MFCC[1], f.Features.MFCC[2], f.Features.MFCC[3],
		f.Features.MFCC[4], f.Features.MFCC[5], f.Features.MFCC[6], f.Features.MFCC[7],
		f.Features.MFCC[8], f.Features.MFCC[9], f.Features.MFCC[10], f.Features.MFCC[11],
		f.Features.MFCC[12],
		f.Summary, boolToInt(f.Conflict), f.Silence, topicID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("file id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO Utterance (FileID, Speaker, Sequence, StartTime, EndTime, Content, Sentiment, Profane)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare utterance insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range rec.Utterances {
		if _, err := stmt.ExecContext(ctx, fileID, u.Speaker, u.Sequence,
			u.StartTime, u.EndTime, u.Content, u.Sentiment, boolToInt(u.Profane)); err != nil {
			return 0, fmt.Errorf("insert utterance %d: %w", u.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit call record: %w", err)
	}
	return fileID, nil
}

// resolveTopicTx resolves a topic name to its row id inside the commit
// transaction, inserting it when absent. The unique constraint on Name makes
// the resolve-or-insert race-safe: a concurrent insert turns ours into a
// no-op and the follow-up select observes the winner's row.
func resolveTopicTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO Topic (Name) VALUES (?) ON CONFLICT(Name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT ID FROM Topic WHERE Name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve topic %q: %w", name, err)
	}
	return id, nil
}

// isTransient reports whether err looks like a transient SQLite lock or
// uniqueness race worth one retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrFileNotFound is returned when a file id does not exist.
var ErrFileNotFound = errors.New("file not found")

// ListFileSummaries returns processed calls newest first with utterance
// counts and sentiment distributions for the listing API.
func (s *Store) ListFileSummaries(ctx context.Context, limit, offset int) ([]FileSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.ID, f.Name, IFNULL(f.Extension, ''), f.Duration,
		       IFNULL(t.Name, 'Unknown'), f.Summary, f.Conflict, f.Silence
		FROM File f
		LEFT JOIN Topic t ON t.ID = f.TopicID
		ORDER BY f.ID DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var summaries []FileSummary
	for rows.Next() {
		var (
			fs       FileSummary
			conflict int
		)
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.Extension, &fs.Duration,
			&fs.TopicName, &fs.Summary, &conflict, &fs.Silence); err != nil {
			return nil, fmt.Errorf("scan file summary: %w", err)
		}
		fs.Conflict = conflict != 0
		summaries = append(summaries, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		sent, err := s.sentimentSummary(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Sentiment = sent
		summaries[i].UtteranceCount = sent.Total
	}
	return summaries, nil
}

// GetFileDetail returns the full call record including utterances and
// acoustic features.
func (s *Store) GetFileDetail(ctx context.Context, id int64) (*FileDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT f.ID, f.Name, IFNULL(f.Extension, ''), IFNULL(f.Path, ''),
		       IFNULL(f.Rate, 0), IFNULL(f.Channels, 0), f.Duration,
		       IFNULL(f.RMSLoudness, 0), IFNULL(f.ZeroCrossingRate, 0), IFNULL(f.SpectralCentroid, 0),
		       IFNULL(f.EQ_20_250_Hz, 0), IFNULL(f.EQ_250_2000_Hz, 0),
		       IFNULL(f.EQ_2000_6000_Hz, 0), IFNULL(f.EQ_6000_20000_Hz, 0),
		       IFNULL(f.MFCC_1,0), IFNULL(f.MFCC_2,0), IFNULL(f.MFCC_3,0), IFNULL(f.MFCC_4,0),
		       IFNULL(f.MFCC_5,0), IFNULL(f.MFCC_6,0), IFNULL(f.MFCC_7,0), IFNULL(f.MFCC_8,0),
		       IFNULL(f.MFCC_9,0), IFNULL(f.MFCC_10,0), IFNULL(f.MFCC_11,0), IFNULL(f.MFCC_12,0),
		       IFNULL(f.MFCC_13,0),
		       f.Summary, f.Conflict, f.Silence, f.TopicID, IFNULL(t.Name, 'Unknown')
		FROM File f
		LEFT JOIN Topic t ON t.ID = f.TopicID
		WHERE f.ID = ?`, id)

	var (
		d        FileDetail
		f        = &d.File
		conflict int
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Extension, &f.Path,
		&f.Rate, &f.Channels, &f.Duration,
		&f.Features.RMSLoudness, &f.Features.ZeroCrossingRate, &f.Features.SpectralCentroid,
		&f.Features.EQ20_250, &f.Features.EQ250_2000,
		&f.Features.EQ2000_6000, &f.Features.EQ6000_20000,
		&f.Features.MFCC[0], &f.Features.MFCC[1], &f.Features.MFCC[2], &f.Features.MFCC[3],
		&f.Features.MFCC[4], &f.Features.MFCC[5], &f.Features.MFCC[6], &f.Features.MFCC[7],
		&f.Features.MFCC[8], &f.Features.MFCC[9], &f.Features.MFCC[10], &f.Features.MFCC[11],
		&f.Features.MFCC[12],
		&f.Summary, &conflict, &f.Silence, &f.TopicID, &d.TopicName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("scan file detail: %w", err)
	}
	f.Conflict = conflict != 0

	utts, err := s.utterancesForFile(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Utterances = utts

	d.Sentiment, err = s.sentimentSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) utterancesForFile(ctx context.Context, fileID int64) ([]Utterance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ID, FileID, Speaker, Sequence, StartTime, EndTime, Content, Sentiment, Profane
		FROM Utterance WHERE FileID = ? ORDER BY Sequence ASC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer rows.Close()

	var utts []Utterance
	for rows.Next() {
		var (
			u       Utterance
			profane int
		)
		if err := rows.Scan(&u.ID, &u.FileID, &u.Speaker, &u.Sequence,
			&u.StartTime, &u.EndTime, &u.Content, &u.Sentiment, &profane); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		u.Profane = profane != 0
		utts = append(utts, u)
	}
	return utts, rows.Err()
}

func (s *Store) sentimentSummary(ctx context.Context, fileID int64) (SentimentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT Sentiment, COUNT(*) FROM Utterance WHERE FileID = ? GROUP BY Sentiment`, fileID)
	if err != nil {
		return SentimentSummary{}, fmt.Errorf("query sentiment summary: %w", err)
	}
	defer rows.Close()

	var sum SentimentSummary
	for rows.Next() {
		var (
			sentiment string
			count     int
		)
		if err := rows.Scan(&sentiment, &count); err != nil {
			return SentimentSummary{}, fmt.Errorf("scan sentiment count: %w", err)
		}
		switch sentiment {
		case "Positive":
			sum.Positive = count
		case "Negative":
			sum.Negative = count
		case "Neutral":
			sum.Neutral = count
		}
		sum.Total += count
	}
	return sum, rows.Err()
}

// CountFiles returns the number of committed call records, used for
// pagination metadata.
func (s *Store) CountFiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM File`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

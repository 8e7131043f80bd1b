package store

import "time"

// Job statuses. Transitions are forward-only:
// pending -> processing -> completed | failed.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Topic is a call topic row. Names are unique; topics are created lazily by
// the first call that mentions them.
type Topic struct {
	ID   int64
	Name string
}

// AcousticFeatures holds the numeric descriptors extracted from the
// waveform. Zero values stand in when feature extraction degraded.
type AcousticFeatures struct {
	RMSLoudness      float64
	ZeroCrossingRate float64
	SpectralCentroid float64
	// Band energies, Hz ranges as in the reporting schema.
	EQ20_250     float64
	EQ250_2000   float64
	EQ2000_6000  float64
	EQ6000_20000 float64
	MFCC         [13]float64
}

// File is one processed call record.
type File struct {
	ID        int64
	Name      string
	Extension string
	Path      string
	Rate      int
	Channels  int
	Duration  float64
	Features  AcousticFeatures
	Summary   string
	Conflict  bool
	Silence   float64
	TopicID   int64
}

// Utterance is one contiguous speaker turn within a File. Sequence numbers
// are gapless and zero-based per file, ordered by start time.
type Utterance struct {
	ID        int64
	FileID    int64
	Speaker   string
	Sequence  int
	StartTime float64
	EndTime   float64
	Content   string
	Sentiment string
	Profane   bool
}

// Job tracks one submission-API processing job.
type Job struct {
	ID           int64
	FileURL      string
	FileName     string
	Status       string
	ResultFileID *int64
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CallRecord is the unit the Persistence Coordinator commits: one File, its
// utterances in sequence order, and the topic name to resolve.
type CallRecord struct {
	File       File
	Utterances []Utterance
	TopicName  string
}

// SentimentSummary is the per-file sentiment distribution exposed by the
// analytics API.
type SentimentSummary struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Total    int `json:"total"`
}

// FileSummary is the lightweight listing row for GET /api/analytics/.
type FileSummary struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Extension      string           `json:"extension"`
	Duration       float64          `json:"duration"`
	TopicName      string           `json:"topic_name"`
	Summary        string           `json:"summary"`
	Conflict       bool             `json:"conflict"`
	Silence        float64          `json:"silence"`
	UtteranceCount int              `json:"utterance_count"`
	Sentiment      SentimentSummary `json:"sentiment"`
}

// FileDetail is the full record for GET /api/analytics/:id/.
type FileDetail struct {
	File       File
	TopicName  string
	Utterances []Utterance
	Sentiment  SentimentSummary
}

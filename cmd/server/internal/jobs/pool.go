// Package jobs implements the submission-API job tracker: a buffered queue
// of download-and-process jobs worked by a fixed pool of pipeline workers.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/callytics/callytics/cmd/server/internal/metrics"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// ErrQueueFull is returned by Submit when the job queue has no room. The
// submission API maps it to 503.
var ErrQueueFull = fmt.Errorf("job queue is full")

// Processor runs the pipeline for one downloaded recording. Implemented by
// orchestrator.Runner.
type Processor interface {
	Process(ctx context.Context, audioPath string) orchestrator.RunResult
}

const (
	defaultQueueSize       = 64
	defaultDownloadTimeout = 10 * time.Minute
	maxDownloadBytes       = 1 << 30 // 1 GiB
)

// Pool downloads submitted recordings and runs them through the pipeline
// with a fixed number of workers. Job rows track progress in the database so
// status survives restarts.
type Pool struct {
	store      *store.Store
	processor  Processor
	inputDir   string
	workers    int
	queue      chan int64
	httpClient *http.Client
	log        *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPool creates a Pool with the given worker count. queueSize <= 0 uses
// the default.
func NewPool(st *store.Store, processor Processor, inputDir string, workers, queueSize int, log *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		store:     st,
		processor: processor,
		inputDir:  inputDir,
		workers:   workers,
		queue:     make(chan int64, queueSize),
		httpClient: &http.Client{
			Timeout: defaultDownloadTimeout,
		},
		log: log,
	}
}

// Start requeues jobs left pending by a previous process, then launches the
// worker goroutines. Workers exit when Stop is called or the context is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	if ids, err := p.store.PendingJobIDs(ctx); err != nil {
		p.log.Error("recover pending jobs", "error", err)
	} else {
		for _, id := range ids {
			select {
			case p.queue <- id:
				metrics.QueueDepth.Inc()
			default:
				p.log.Warn("queue full, pending job not requeued", "job_id", id)
			}
		}
		if len(ids) > 0 {
			p.log.Info("requeued pending jobs", "count", len(ids))
		}
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.Info("job pool started", "workers", p.workers, "queue_size", cap(p.queue))
}

// Stop closes the queue and waits for in-flight jobs to finish. Safe to call
// multiple times.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// Submit records a new pending job for fileURL and queues it. Returns
// ErrQueueFull (with the job already marked failed) when no queue slot is
// available.
func (p *Pool) Submit(ctx context.Context, fileURL string) (*store.Job, error) {
	if _, err := url.ParseRequestURI(fileURL); err != nil {
		return nil, fmt.Errorf("invalid file_url: %w", err)
	}

	job, err := p.store.CreateJob(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	select {
	case p.queue <- job.ID:
		metrics.QueueDepth.Inc()
		return job, nil
	default:
		if err := p.store.MarkJobFailed(ctx, job.ID, "job queue is full"); err != nil {
			p.log.Error("mark overflow job failed", "job_id", job.ID, "error", err)
		}
		return nil, ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)

	for jobID := range p.queue {
		metrics.QueueDepth.Dec()
		if ctx.Err() != nil {
			// shutdown: leave remaining jobs pending for the next start
			continue
		}
		p.runJob(ctx, log, jobID)
	}
}

// runJob executes one job end to end: claim, download, process, record the
// terminal status.
func (p *Pool) runJob(ctx context.Context, log *slog.Logger, jobID int64) {
	log = log.With("job_id", jobID)

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("load job", "error", err)
		return
	}
	if err := p.store.MarkJobProcessing(ctx, jobID); err != nil {
		log.Error("claim job", "error", err)
		return
	}

	audioPath, err := p.download(ctx, job)
	if err != nil {
		log.Warn("download failed", "url", job.FileURL, "error", err)
		p.fail(ctx, log, jobID, fmt.Sprintf("download failed: %v", err))
		return
	}
	if err := p.store.SetJobFileName(ctx, jobID, filepath.Base(audioPath)); err != nil {
		log.Error("record file name", "error", err)
	}

	res := p.processor.Process(ctx, audioPath)
	switch res.Outcome {
	case orchestrator.OutcomePersisted:
		fileID := res.FileID
		if err := p.store.MarkJobCompleted(ctx, jobID, &fileID); err != nil {
			log.Error("complete job", "error", err)
		}
	case orchestrator.OutcomeRejected:
		// classification succeeded, nothing to analyze: completed with no
		// result and the reason recorded
		if err := p.store.MarkJobCompleted(ctx, jobID, nil); err != nil {
			log.Error("complete rejected job", "error", err)
		}
		log.Info("job recording rejected", "reason", res.Reason)
	case orchestrator.OutcomeFailed:
		p.fail(ctx, log, jobID, res.Err.Error())
	}
}

func (p *Pool) fail(ctx context.Context, log *slog.Logger, jobID int64, msg string) {
	if err := p.store.MarkJobFailed(ctx, jobID, msg); err != nil {
		log.Error("mark job failed", "error", err)
	}
}

// download fetches the job's source URL into the input directory as
// job_<id>_<name>. Only http and https schemes are accepted.
func (p *Pool) download(ctx context.Context, job *store.Job) (string, error) {
	u, err := url.Parse(job.FileURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err := os.MkdirAll(p.inputDir, 0o755); err != nil {
		return "", fmt.Errorf("create input dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.FileURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch audio: HTTP %d", resp.StatusCode)
	}

	name := sanitizeFileName(filepath.Base(u.Path))
	if name == "" || name == "." || name == "/" {
		name = "audio"
	}
	dest := filepath.Join(p.inputDir, fmt.Sprintf("job_%d_%s", job.ID, name))

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadBytes)); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write file: %w", err)
	}
	return dest, nil
}

// sanitizeFileName strips path separators and control characters from a
// remote file name.
func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == '\\' || r == ':' {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

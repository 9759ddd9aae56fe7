// Package enrichment runs best-effort image enrichment for stored reports.
// Jobs are queued after a report is persisted and processed asynchronously;
// a failed job never affects the report itself.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"honest-report-service/metrics"
)

// Job asks the workers to find a product image for a stored report.
// Candidates are tried in order; the first valid hit wins.
type Job struct {
	ReportID   int64    `json:"report_id"`
	Candidates []string `json:"candidates"`
}

// Queue accepts enrichment jobs for asynchronous processing.
type Queue interface {
	Enqueue(job Job) error
	Close() error
}

// ImageSearcher finds an image URL for a query. A miss is (_, false), never an error.
type ImageSearcher interface {
	SearchImage(ctx context.Context, query string) (string, bool)
}

// ImageStore persists the found image URL on the report.
type ImageStore interface {
	UpdateReportImage(id int64, imageURL string) error
}

// ErrQueueFull is returned by Enqueue when the in-process queue has no room.
var ErrQueueFull = errors.New("enrichment queue is full")

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("enrichment queue is closed")

// ChannelQueue is the default in-process queue backed by a buffered channel.
type ChannelQueue struct {
	mu     sync.Mutex
	jobs   chan Job
	closed bool
}

// NewChannelQueue creates an in-process queue with the given buffer size.
func NewChannelQueue(buffer int) *ChannelQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelQueue{jobs: make(chan Job, buffer)}
}

// Enqueue adds a job without blocking. A full queue is reported, not waited on,
// so the HTTP path that enqueues never stalls on enrichment backpressure.
func (q *ChannelQueue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		metrics.EnrichmentQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Jobs exposes the receive side for the worker pool.
func (q *ChannelQueue) Jobs() <-chan Job {
	return q.jobs
}

// Close stops accepting new jobs. Workers drain what is already queued.
func (q *ChannelQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}

// Worker processes enrichment jobs with bounded retries and exponential backoff.
type Worker struct {
	searcher   ImageSearcher
	store      ImageStore
	maxRetries int
	baseDelay  time.Duration
}

// NewWorker creates a worker. maxRetries counts attempts after the first one;
// baseDelay is doubled between attempts.
func NewWorker(searcher ImageSearcher, store ImageStore, maxRetries int, baseDelay time.Duration) *Worker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Worker{
		searcher:   searcher,
		store:      store,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Run consumes jobs with a pool of goroutines until the channel closes or the
// context is cancelled. It blocks until all workers have finished.
func (w *Worker) Run(ctx context.Context, jobs <-chan Job, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerID := i + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					metrics.EnrichmentQueueDepth.Dec()
					metrics.EnrichmentInFlight.Inc()
					if err := w.Process(ctx, job); err != nil {
						log.WithError(err).Warnf("enrichment: giving up on report %d (worker %d)", job.ReportID, workerID)
						metrics.EnrichmentJobsTotal.WithLabelValues("failed").Inc()
					} else {
						metrics.EnrichmentJobsTotal.WithLabelValues("success").Inc()
					}
					metrics.EnrichmentInFlight.Dec()
				}
			}
		}()
	}
	wg.Wait()
}

// Process runs one job to completion: try each candidate query, store the
// first hit, retry the whole job with backoff when nothing was found.
func (w *Worker) Process(ctx context.Context, job Job) error {
	if job.ReportID <= 0 {
		return fmt.Errorf("invalid report id %d", job.ReportID)
	}
	if len(job.Candidates) == 0 {
		return errors.New("no image search candidates")
	}

	delay := w.baseDelay
	for attempt := 0; ; attempt++ {
		if url, ok := w.searchOnce(ctx, job); ok {
			if err := w.store.UpdateReportImage(job.ReportID, url); err != nil {
				return fmt.Errorf("update report image: %w", err)
			}
			log.Infof("enrichment: report %d image set (attempt %d)", job.ReportID, attempt+1)
			return nil
		}

		if attempt >= w.maxRetries {
			return fmt.Errorf("no image found after %d attempts", attempt+1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (w *Worker) searchOnce(ctx context.Context, job Job) (string, bool) {
	for _, query := range job.Candidates {
		if query == "" {
			continue
		}
		if url, ok := w.searcher.SearchImage(ctx, query); ok {
			return url, true
		}
	}
	return "", false
}

package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/trackerimport/internal/domain"
	"example.com/trackerimport/internal/importer"
	"example.com/trackerimport/internal/metrics"
)

// Job is one async bulk submission.
type Job struct {
	ID      string
	Events  []domain.Event
	Options importer.ImportOptions
}

type EnqueueResult int

const (
	EnqueueQueued EnqueueResult = iota
	EnqueueDuplicate
	EnqueueFull
)

type Updater interface {
	Update(ctx context.Context, events []domain.Event, opts importer.ImportOptions) (*importer.ImportSummary, error)
}

type Ingestor struct {
	queue        chan Job
	updater      Updater
	batchMaxSize int
	batchMaxWait time.Duration
	logger       *zap.Logger

	mu          sync.Mutex
	seen        map[string]time.Time
	dedupWindow time.Duration
	now         func() time.Time

	done chan struct{}
}

func NewIngestor(updater Updater, logger *zap.Logger, queueMaxSize, batchMaxSize int, batchMaxWait, dedupWindow time.Duration) *Ingestor {
	return &Ingestor{
		queue:        make(chan Job, queueMaxSize),
		updater:      updater,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		logger:       logger,
		seen:         make(map[string]time.Time),
		dedupWindow:  dedupWindow,
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is done. Jobs are flushed once the
// pending event count reaches batchMaxSize or batchMaxWait elapses. On
// shutdown every job still in the queue is drained and flushed before the
// loop exits. Start must be called at most once.
func (ig *Ingestor) Start(ctx context.Context) {
	// jobs accepted before shutdown still run to completion
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(ig.done)
		batch := make([]Job, 0, 8)
		pending := 0
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		flush := func() {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			for _, job := range batch {
				ig.run(runCtx, job)
			}
			batch = batch[:0]
			pending = 0
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				for drained := false; !drained; {
					select {
					case job := <-ig.queue:
						batch = append(batch, job)
					default:
						drained = true
					}
				}
				flush()
				return
			case job := <-ig.queue:
				batch = append(batch, job)
				pending += len(job.Events)
				if pending >= ig.batchMaxSize {
					flush()
				}
			case <-t.C:
				flush()
			}
		}
	}()
}

// Wait blocks until the loop started by Start has flushed its last batch.
func (ig *Ingestor) Wait() {
	<-ig.done
}

func (ig *Ingestor) run(ctx context.Context, job Job) {
	summary, err := ig.updater.Update(ctx, job.Events, job.Options)
	if err != nil {
		ig.logger.Error("batch update FAILED",
			zap.String("job", job.ID), zap.Int("dropped", len(job.Events)), zap.Error(err))
		ig.forget(job.ID)
		return
	}
	metrics.ObserveImport("async", summary.Updated, summary.Ignored)
	ig.logger.Info("batch update OK",
		zap.String("job", job.ID),
		zap.String("status", string(summary.Status)),
		zap.Int("updated", summary.Updated),
		zap.Int("ignored", summary.Ignored),
		zap.Int("conflicts", len(summary.Conflicts)))
}

// Enqueue never blocks; a full queue is reported as EnqueueFull.
func (ig *Ingestor) Enqueue(job Job) EnqueueResult {
	ig.mu.Lock()
	now := ig.now()
	ig.evictLocked(now)
	if _, dup := ig.seen[job.ID]; dup && job.ID != "" {
		ig.mu.Unlock()
		return EnqueueDuplicate
	}
	if job.ID != "" {
		ig.seen[job.ID] = now
	}
	ig.mu.Unlock()

	select {
	case ig.queue <- job:
		return EnqueueQueued
	default:
		ig.forget(job.ID)
		return EnqueueFull
	}
}

func (ig *Ingestor) forget(id string) {
	ig.mu.Lock()
	delete(ig.seen, id)
	ig.mu.Unlock()
}

func (ig *Ingestor) evictLocked(now time.Time) {
	for id, at := range ig.seen {
		if now.Sub(at) > ig.dedupWindow {
			delete(ig.seen, id)
		}
	}
}

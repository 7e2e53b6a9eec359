package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/config"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"gorm.io/gorm"
)

// Worker is the single-threaded poll loop that drains both queues. One
// iteration: refresh the heartbeat if due, make sure today's recurring
// post batch exists, drain the post queue, drain the vote queue, and sleep
// the poll interval when both came up empty. Several instances may run
// against the same database; the claim CAS and the dedup indexes keep them
// from stepping on each other.
type Worker struct {
	cfg     config.WorkerConfig
	db      *gorm.DB
	repo    *Repo
	procs   []QueueProcessor
	hb      *HeartbeatReporter
	metrics *metrics.Collector

	// Mutated only from the loop goroutine.
	processed int64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewWorker(db *gorm.DB, cfg config.WorkerConfig, client CompletionClient, collector *metrics.Collector) *Worker {
	w := &Worker{
		cfg:     cfg,
		db:      db,
		repo:    &Repo{DB: db},
		metrics: collector,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.hb = &HeartbeatReporter{
		DB:         db,
		InstanceID: NewInstanceID(),
		Processed:  &w.processed,
	}

	votes := &vote.Service{DB: db}

	// Post queue first: finished posts feed the vote queue.
	w.procs = []QueueProcessor{
		&PostJobProcessor{
			DB: db, Repo: w.repo, Client: client, Metrics: collector,
			BatchSize: cfg.PostBatchSize, Delay: cfg.PostProcessDelay,
			MaxRetries: cfg.MaxRetries, Processed: &w.processed,
		},
		&VoteJobProcessor{
			DB: db, Repo: w.repo, Votes: votes, Client: client, Metrics: collector,
			BatchSize: cfg.VoteBatchSize, Delay: cfg.VoteProcessDelay,
			MaxRetries: cfg.MaxRetries, Processed: &w.processed,
		},
	}
	return w
}

func (w *Worker) InstanceID() string { return w.hb.InstanceID }

// Run blocks until Stop is called or ctx is cancelled. It never returns
// because of a job failure; those are recorded on the job rows.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.hb.StartedAt = time.Now()
	log.Printf("[worker] starting, instance %s", w.hb.InstanceID)

	if err := w.hb.ReportRunning(ctx); err != nil {
		log.Printf("[worker] heartbeat init: %v", err)
	}
	lastHeartbeat := time.Now()

	for !w.shouldStop(ctx) {
		w.iterate(ctx, &lastHeartbeat)
	}

	if err := w.hb.ReportStopped(context.Background()); err != nil {
		log.Printf("[worker] heartbeat stop: %v", err)
	}
	log.Printf("[worker] stopped, instance %s, processed %d", w.hb.InstanceID, w.processed)
}

func (w *Worker) iterate(ctx context.Context, lastHeartbeat *time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker] iteration panic: %v", r)
			if err := w.hb.ReportError(ctx); err != nil {
				log.Printf("[worker] heartbeat error report: %v", err)
			}
			w.sleep(ctx, w.cfg.PollInterval)
		}
	}()

	if time.Since(*lastHeartbeat) >= w.cfg.HeartbeatInterval {
		if err := w.hb.ReportRunning(ctx); err != nil {
			log.Printf("[worker] heartbeat: %v", err)
		}
		*lastHeartbeat = time.Now()
	}

	// Self-check: the worker creates the day's recurring batch itself, so
	// no external scheduler is needed. Errors here must not stop the loop.
	if created, err := w.repo.EnsureDailyPostJobs(ctx, time.Now()); err != nil {
		log.Printf("[daily] ensure batch: %v", err)
	} else if created > 0 {
		log.Printf("[daily] created %d post jobs for today", created)
	}

	for _, p := range w.procs {
		if w.shouldStop(ctx) {
			return
		}
		items, err := p.ClaimBatch(ctx)
		if err != nil {
			log.Printf("[worker] claim %s batch: %v", p.Name(), err)
			continue
		}
		if len(items) > 0 {
			log.Printf("[worker] claimed %d %s jobs", len(items), p.Name())
		}
		for i, item := range items {
			if w.shouldStop(ctx) {
				// Finish nothing new after a stop request: put the rest of
				// the batch back so no row sits in processing unowned.
				for _, rest := range items[i:] {
					rest.Release(context.Background())
				}
				return
			}
			item.Run(ctx)
			w.sleep(ctx, p.PacingDelay())
		}
	}

	voteDepth, postDepth, err := w.repo.PendingCounts(ctx)
	if err != nil {
		log.Printf("[worker] pending counts: %v", err)
		w.sleep(ctx, w.cfg.PollInterval)
		return
	}
	w.metrics.SetPending("vote", voteDepth)
	w.metrics.SetPending("post", postDepth)

	if voteDepth == 0 && postDepth == 0 {
		w.sleep(ctx, w.cfg.PollInterval)
	}
}

// Stop requests a cooperative stop and waits for the loop to exit. The
// current item is allowed to finish, so shutdown latency is bounded by one
// job's processing time.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) shouldStop(ctx context.Context) bool {
	select {
	case <-w.stopCh:
		return true
	default:
	}
	return ctx.Err() != nil
}

// sleep waits d but wakes immediately on a stop request.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.stopCh:
	case <-ctx.Done():
	}
}

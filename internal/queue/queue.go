package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/pipeline"
)

// Runner executes one job. The production implementation adapts the
// enhancement pipeline; tests substitute scripted behavior.
type Runner interface {
	Run(ctx context.Context, input, output string, progress pipeline.ProgressFunc) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, input, output string, progress pipeline.ProgressFunc) error

func (f RunnerFunc) Run(ctx context.Context, input, output string, progress pipeline.ProgressFunc) error {
	return f(ctx, input, output, progress)
}

// Options configures a ProcessingQueue.
type Options struct {
	Workers      int
	PollInterval time.Duration
	StopTimeout  time.Duration
	OutputDir    string   // destination for derived outputs; empty = alongside input
	Extensions   []string // recognized video extensions, with leading dot; empty = defaults
	Store        Store    // optional state mirror; nil disables persistence
}

// ProcessingQueue accepts jobs and drains them with a fixed worker pool.
// The in-memory registry is the authoritative state; the optional store is a
// write-behind mirror for inspection across restarts.
type ProcessingQueue struct {
	mu      sync.Mutex
	jobs    map[int64]*Job
	pending []int64
	nextID  int64
	started bool
	stopped bool

	signal chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runner     Runner
	store      Store
	workers    int
	poll       time.Duration
	stopWait   time.Duration
	outputDir  string
	extensions map[string]bool
	logger     *slog.Logger
}

// New creates a stopped queue; call Start to begin draining it.
func New(runner Runner, opts Options, logger *slog.Logger) *ProcessingQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}

	if len(opts.Extensions) == 0 {
		opts.Extensions = config.DefaultExtensions
	}

	extensions := map[string]bool{}
	for _, ext := range opts.Extensions {
		extensions[strings.ToLower(ext)] = true
	}

	return &ProcessingQueue{
		jobs:       map[int64]*Job{},
		signal:     make(chan struct{}, 1),
		runner:     runner,
		store:      opts.Store,
		workers:    opts.Workers,
		poll:       opts.PollInterval,
		stopWait:   opts.StopTimeout,
		outputDir:  opts.OutputDir,
		extensions: extensions,
		logger:     logger,
	}
}

// AddJob enqueues one input/output pair. It never blocks, regardless of how
// many jobs are already queued. Empty output derives <stem>_enhanced.mp4.
func (q *ProcessingQueue) AddJob(input, output string) Job {
	if output == "" {
		output = q.deriveOutput(input)
	}

	q.mu.Lock()
	q.nextID++
	job := &Job{
		ID:        q.nextID,
		Input:     input,
		Output:    output,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job.ID)
	snapshot := *job
	q.mu.Unlock()

	q.persist(snapshot)
	q.wake()

	q.logger.Info("job queued",
		slog.Int64("job_id", snapshot.ID),
		slog.String("input", input),
		slog.String("output", output))
	return snapshot
}

// AddDirectory enqueues every video file directly inside dir, in a
// deterministic name order. Subdirectories and unrecognized extensions are
// skipped. Directories trees are intentionally not walked; point the queue
// at each directory you mean.
func (q *ProcessingQueue) AddDirectory(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if q.IsVideoFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, q.AddJob(filepath.Join(dir, name), ""))
	}
	return jobs, nil
}

// IsVideoFile reports whether the name carries a recognized video extension.
// Matching is case-insensitive.
func (q *ProcessingQueue) IsVideoFile(name string) bool {
	return q.extensions[strings.ToLower(filepath.Ext(name))]
}

func (q *ProcessingQueue) deriveOutput(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	dir := q.outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+"_enhanced.mp4")
}

// Start launches the worker pool. Calling Start on a running queue is a
// no-op; a stopped queue stays stopped.
func (q *ProcessingQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.Info("queue started", slog.Int("workers", q.workers))
}

// Stop shuts the pool down. New claims stop immediately; jobs already being
// processed are left to finish, and Stop waits for them only up to the
// configured timeout. A job whose worker outlives the wait keeps its
// processing status; on restart it is the operator's call to re-enqueue.
func (q *ProcessingQueue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue stopped")
	case <-time.After(q.stopWait):
		q.logger.Warn("queue stop timed out with jobs still processing",
			slog.Duration("waited", q.stopWait))
	}
}

// CancelJob cancels a job that has not started yet. Jobs that are already
// processing or finished are not touched; cancellation of running work is
// deliberately unsupported.
func (q *ProcessingQueue) CancelJob(id int64) bool {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return false
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.FinishedAt = &now
	snapshot := *job
	q.mu.Unlock()

	q.persist(snapshot)
	q.logger.Info("job cancelled", slog.Int64("job_id", id))
	return true
}

// GetJobStatus returns a snapshot of one job.
func (q *ProcessingQueue) GetJobStatus(id int64) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// GetAllJobs returns snapshots of every known job, ordered by ID.
func (q *ProcessingQueue) GetAllJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of jobs per status.
func (q *ProcessingQueue) Counts() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := map[Status]int{}
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	return counts
}

// wake nudges an idle worker without ever blocking the caller.
func (q *ProcessingQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *ProcessingQueue) worker(ctx context.Context, n int) {
	defer q.wg.Done()
	logger := q.logger.With(slog.Int("worker", n))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok := q.claim()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.signal:
			case <-time.After(q.poll):
			}
			continue
		}
		q.run(ctx, logger, job)
	}
}

// claim pops pending IDs until one is still actually pending and marks it
// processing. Cancelled entries linger in the FIFO and are skipped here.
func (q *ProcessingQueue) claim() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]

		job, ok := q.jobs[id]
		if !ok || job.Status != StatusPending {
			continue
		}
		job.Status = StatusProcessing
		now := time.Now()
		job.StartedAt = &now
		return *job, true
	}
	return Job{}, false
}

func (q *ProcessingQueue) run(ctx context.Context, logger *slog.Logger, job Job) {
	logger.Info("job started", slog.Int64("job_id", job.ID), slog.String("input", job.Input))
	q.persist(job)

	progress := func(stage pipeline.Stage, percent float64) {
		q.updateProgress(job.ID, string(stage), percent)
	}

	// Shutdown stops new claims but never kills an export mid-stream; a
	// half-written output is worthless.
	err := q.runner.Run(context.WithoutCancel(ctx), job.Input, job.Output, progress)

	q.mu.Lock()
	stored, ok := q.jobs[job.ID]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	stored.FinishedAt = &now
	if err != nil {
		stored.Status = StatusFailed
		stored.Error = err.Error()
	} else {
		stored.Status = StatusCompleted
		stored.Progress = 100
	}
	snapshot := *stored
	q.mu.Unlock()

	q.persist(snapshot)
	if err != nil {
		logger.Error("job failed", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	logger.Info("job completed", slog.Int64("job_id", job.ID), slog.String("output", job.Output))
}

// updateProgress records in-flight progress. Per-frame updates stay in
// memory; only stage transitions are mirrored to the store.
func (q *ProcessingQueue) updateProgress(id int64, stage string, percent float64) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.mu.Unlock()
		return
	}
	stageChanged := job.Stage != stage
	job.Stage = stage
	if percent > job.Progress {
		job.Progress = percent
	}
	snapshot := *job
	q.mu.Unlock()

	if stageChanged {
		q.persist(snapshot)
	}
}

func (q *ProcessingQueue) persist(job Job) {
	if q.store == nil {
		return
	}
	if err := q.store.Upsert(job); err != nil {
		q.logger.Warn("persisting job state failed",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

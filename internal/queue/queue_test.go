package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/pipeline"
)

func testOptions() Options {
	return Options{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  time.Second,
		Extensions:   config.DefaultExtensions,
	}
}

func noopRunner() Runner {
	return RunnerFunc(func(context.Context, string, string, pipeline.ProgressFunc) error {
		return nil
	})
}

func waitForStatus(t *testing.T, q *ProcessingQueue, id int64, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := q.GetJobStatus(id)
		require.True(t, ok)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.GetJobStatus(id)
	t.Fatalf("job %d stuck in %s, wanted %s", id, job.Status, want)
	return Job{}
}

func TestAddJobAssignsMonotonicIDs(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)

	a := q.AddJob("/video/a.avi", "")
	b := q.AddJob("/video/b.avi", "")

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "/video/a_enhanced.mp4", a.Output)
}

func TestAddJobConcurrentUniqueIDs(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- q.AddJob("/video/in.avi", "/video/out.mp4").ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestAddJobOutputDir(t *testing.T) {
	opts := testOptions()
	opts.OutputDir = "/enhanced"
	q := New(noopRunner(), opts, nil)

	job := q.AddJob("/video/tape.vob", "")
	assert.Equal(t, filepath.Join("/enhanced", "tape_enhanced.mp4"), job.Output)
}

func TestAddDirectoryFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mkv", "a.avi", "c.txt", "D.MP4", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.avi"), []byte{0}, 0o644))

	q := New(noopRunner(), testOptions(), nil)
	jobs, err := q.AddDirectory(dir)
	require.NoError(t, err)

	// Only direct video files, in name order; extension match is
	// case-insensitive and the walk is not recursive.
	require.Len(t, jobs, 3)
	assert.Equal(t, filepath.Join(dir, "D.MP4"), jobs[0].Input)
	assert.Equal(t, filepath.Join(dir, "a.avi"), jobs[1].Input)
	assert.Equal(t, filepath.Join(dir, "b.mkv"), jobs[2].Input)
	assert.Equal(t, filepath.Join(dir, "a_enhanced.mp4"), jobs[1].Output)
}

func TestEmptyExtensionsFallBackToDefaults(t *testing.T) {
	opts := testOptions()
	opts.Extensions = nil
	q := New(noopRunner(), opts, nil)

	assert.True(t, q.IsVideoFile("tape.AVI"))
	assert.True(t, q.IsVideoFile("tape.vob"))
	assert.False(t, q.IsVideoFile("notes.txt"))
}

func TestAddDirectoryMissing(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)
	_, err := q.AddDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestQueueProcessesJobs(t *testing.T) {
	var processed atomic.Int32
	runner := RunnerFunc(func(_ context.Context, input, output string, progress pipeline.ProgressFunc) error {
		progress(pipeline.StageExport, 90)
		processed.Add(1)
		return nil
	})

	q := New(runner, testOptions(), nil)
	q.Start(context.Background())
	defer q.Stop()

	a := q.AddJob("/video/a.avi", "/out/a.mp4")
	b := q.AddJob("/video/b.avi", "/out/b.mp4")

	doneA := waitForStatus(t, q, a.ID, StatusCompleted)
	doneB := waitForStatus(t, q, b.ID, StatusCompleted)

	assert.Equal(t, int32(2), processed.Load())
	assert.Equal(t, float64(100), doneA.Progress)
	assert.NotNil(t, doneA.StartedAt)
	assert.NotNil(t, doneB.FinishedAt)
}

func TestFailureIsolation(t *testing.T) {
	runner := RunnerFunc(func(_ context.Context, input, _ string, _ pipeline.ProgressFunc) error {
		if filepath.Base(input) == "bad.avi" {
			return errors.New("corrupt stream")
		}
		return nil
	})

	opts := testOptions()
	opts.Workers = 1
	q := New(runner, opts, nil)
	q.Start(context.Background())
	defer q.Stop()

	bad := q.AddJob("/video/bad.avi", "/out/bad.mp4")
	good := q.AddJob("/video/good.avi", "/out/good.mp4")

	failed := waitForStatus(t, q, bad.ID, StatusFailed)
	assert.Contains(t, failed.Error, "corrupt stream")

	// The failure does not poison the worker or the queue.
	waitForStatus(t, q, good.ID, StatusCompleted)
}

func TestCancelPendingJob(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)

	job := q.AddJob("/video/a.avi", "/out/a.mp4")
	assert.True(t, q.CancelJob(job.ID))

	got, ok := q.GetJobStatus(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.NotNil(t, got.FinishedAt)

	// Cancelled jobs are never picked up once workers start.
	q.Start(context.Background())
	defer q.Stop()
	time.Sleep(50 * time.Millisecond)
	got, _ = q.GetJobStatus(job.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancelProcessingJobRefused(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(context.Context, string, string, pipeline.ProgressFunc) error {
		close(started)
		<-release
		return nil
	})

	opts := testOptions()
	opts.Workers = 1
	q := New(runner, opts, nil)
	q.Start(context.Background())
	defer q.Stop()

	job := q.AddJob("/video/a.avi", "/out/a.mp4")
	<-started

	assert.False(t, q.CancelJob(job.ID), "processing jobs must not be cancellable")
	close(release)

	waitForStatus(t, q, job.ID, StatusCompleted)
	assert.False(t, q.CancelJob(job.ID), "finished jobs must not be cancellable")
}

func TestCancelUnknownJob(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)
	assert.False(t, q.CancelJob(42))
}

func TestStopLeavesInFlightJobRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, _, _ string, _ pipeline.ProgressFunc) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	opts := testOptions()
	opts.Workers = 1
	opts.StopTimeout = 50 * time.Millisecond
	q := New(runner, opts, nil)
	q.Start(context.Background())

	job := q.AddJob("/video/slow.avi", "/out/slow.mp4")
	queued := q.AddJob("/video/next.avi", "/out/next.mp4")
	<-started

	// Stop returns after its bounded wait; the in-flight job is neither
	// cancelled nor failed, and the queued one is never claimed.
	stopDone := make(chan struct{})
	go func() {
		q.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within its timeout")
	}

	got, _ := q.GetJobStatus(job.ID)
	assert.Equal(t, StatusProcessing, got.Status)
	gotQueued, _ := q.GetJobStatus(queued.ID)
	assert.Equal(t, StatusPending, gotQueued.Status)

	// The runner still finishes cleanly after the release.
	close(release)
	waitForStatus(t, q, job.ID, StatusCompleted)
}

func TestStartIdempotent(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)
	ctx := context.Background()

	q.Start(ctx)
	q.Start(ctx) // second call is a no-op, not a second pool
	defer q.Stop()

	job := q.AddJob("/video/a.avi", "/out/a.mp4")
	waitForStatus(t, q, job.ID, StatusCompleted)
}

func TestProgressUpdatesVisible(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(_ context.Context, _, _ string, progress pipeline.ProgressFunc) error {
		progress(pipeline.StageExport, 85)
		close(reached)
		<-release
		return nil
	})

	opts := testOptions()
	opts.Workers = 1
	q := New(runner, opts, nil)
	q.Start(context.Background())
	defer q.Stop()

	job := q.AddJob("/video/a.avi", "/out/a.mp4")
	<-reached

	got, ok := q.GetJobStatus(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, string(pipeline.StageExport), got.Stage)
	assert.Equal(t, 85.0, got.Progress)

	close(release)
	waitForStatus(t, q, job.ID, StatusCompleted)
}

func TestCountsAndGetAllJobs(t *testing.T) {
	q := New(noopRunner(), testOptions(), nil)

	q.AddJob("/video/a.avi", "/out/a.mp4")
	b := q.AddJob("/video/b.avi", "/out/b.mp4")
	q.CancelJob(b.ID)

	counts := q.Counts()
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusCancelled])

	jobs := q.GetAllJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(1), jobs[0].ID)
	assert.Equal(t, int64(2), jobs[1].ID)
}

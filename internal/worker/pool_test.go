package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan int, 3)
	for i := 0; i < 3; i++ {
		n := i
		pool.Submit(func(context.Context) error {
			done <- n
			return nil
		})
	}

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		select {
		case n := <-done:
			seen[n] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Len(t, seen, 3)

	pool.Stop()
}

func TestWorkerPoolSurvivesPanickingJob(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Submit(func(context.Context) error {
		var columns []string
		_ = columns[3] // index out of range
		return nil
	})

	done := make(chan struct{})
	pool.Submit(func(context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panicking job")
	}

	pool.Stop()
}

func TestRunJobTurnsPanicIntoError(t *testing.T) {
	pool := NewWorkerPool(1)

	err := pool.runJob(context.Background(), func(context.Context) error {
		panic("boom")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

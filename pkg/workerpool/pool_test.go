package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64
	fn := func(ctx context.Context, task *Task) *Result {
		atomic.AddInt64(&processed, 1)
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{Workers: 2, QueueSize: 10, GracefulShutdownTimeout: time.Second}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	for i := 0; i < 5; i++ {
		if err := pool.Submit(&Task{ID: "t"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&processed) < 5 {
		select {
		case <-deadline:
			t.Fatalf("processed %d of 5 tasks", atomic.LoadInt64(&processed))
		case <-time.After(10 * time.Millisecond):
		}
	}

	pool.Stop()

	stats := pool.Stats()
	if stats.TasksCompleted != 5 {
		t.Errorf("TasksCompleted = %d, want 5", stats.TasksCompleted)
	}
}

func TestPoolRetriesFailedTasks(t *testing.T) {
	var attempts int64
	fn := func(ctx context.Context, task *Task) *Result {
		n := atomic.AddInt64(&attempts, 1)
		if n < 3 {
			return &Result{TaskID: task.ID, Success: false, Error: errors.New("transient")}
		}
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{
		Workers:                 1,
		QueueSize:               1,
		MaxRetries:              3,
		RetryDelay:              time.Millisecond,
		GracefulShutdownTimeout: time.Second,
	}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	if err := pool.Submit(&Task{ID: "retry"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&attempts) < 3 {
		select {
		case <-deadline:
			t.Fatalf("attempts = %d, want 3", atomic.LoadInt64(&attempts))
		case <-time.After(5 * time.Millisecond):
		}
	}

	pool.Stop()

	stats := pool.Stats()
	if stats.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1", stats.TasksCompleted)
	}
	if stats.TasksRetried != 2 {
		t.Errorf("TasksRetried = %d, want 2", stats.TasksRetried)
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	fn := func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}
	pool, err := New(Config{Workers: 1, QueueSize: 1, GracefulShutdownTimeout: time.Second}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); err == nil {
		t.Error("Submit after Stop succeeded, want error")
	}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Size: 2})

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		if err := pool.Submit(func(ctx context.Context) { done <- struct{}{} }); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}

	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Size: 1})
	pool.Stop()

	err := pool.Submit(func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_StopWhileSubmitBlocked(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Size: 1, QueueDepth: 1})

	release := make(chan struct{})
	ran := make(chan struct{}, 3)

	// Занимаем единственного воркера и заполняем очередь.
	if err := pool.Submit(func(ctx context.Context) { <-release; ran <- struct{}{} }); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if err := pool.Submit(func(ctx context.Context) { ran <- struct{}{} }); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	// Третий Submit блокируется на полной очереди.
	submitted := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				submitted <- fmt.Errorf("submit panicked: %v", r)
			}
		}()
		submitted <- pool.Submit(func(ctx context.Context) { ran <- struct{}{} })
	}()

	// Даём горутине дойти до send, затем отпускаем воркера и останавливаем
	// пул параллельно с заблокированным Submit.
	time.Sleep(50 * time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	pool.Stop()

	select {
	case err := <-submitted:
		if err != nil {
			t.Fatalf("blocked submit must settle cleanly on Stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submit did not return after Stop")
	}

	// Принятые задачи доработали до конца.
	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("accepted job %d did not finish", i)
		}
	}

	if err := pool.Submit(func(ctx context.Context) {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped after Stop, got %v", err)
	}
}

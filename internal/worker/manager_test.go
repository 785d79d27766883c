package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func workerCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

func queued(m *Manager, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.workers[key]; ok {
		return len(state.taskCh)
	}
	return 0
}

func TestManagerRunsTasksForOneKeySerially(t *testing.T) {
	manager := NewManager(32)
	defer manager.StopAll()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		order   []int
	)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := manager.Do(context.Background(), "default", func(context.Context) {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				order = append(order, i)
				mu.Unlock()
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("tasks for one key overlapped: max concurrency %d", maxSeen)
	}
	if len(order) != 10 {
		t.Fatalf("expected 10 tasks to run, got %d", len(order))
	}
	if n := workerCount(manager); n != 1 {
		t.Fatalf("expected a single worker, got %d", n)
	}
}

func TestManagerQueueFull(t *testing.T) {
	manager := NewManager(1)
	defer manager.StopAll()

	release := make(chan struct{})
	started := make(chan struct{})
	go manager.Do(context.Background(), "k", func(context.Context) {
		close(started)
		<-release
	})
	<-started

	// occupies the single queue slot
	go manager.Do(context.Background(), "k", func(context.Context) {})
	deadline := time.Now().Add(time.Second)
	for queued(manager, "k") < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	err := manager.Do(context.Background(), "k", func(context.Context) {})
	close(release)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestManagerDropsTaskWithCancelledContext(t *testing.T) {
	manager := NewManager(4)
	defer manager.StopAll()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := manager.Do(ctx, "k", func(context.Context) { ran = true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the worker must still be usable afterwards
	if err := manager.Do(context.Background(), "k", func(context.Context) {}); err != nil {
		t.Fatalf("Do after cancel: %v", err)
	}
	if ran {
		t.Fatalf("cancelled task should not run")
	}
}

func TestManagerRecoversPanics(t *testing.T) {
	manager := NewManager(4)
	defer manager.StopAll()

	err := manager.Do(context.Background(), "k", func(context.Context) { panic("boom") })
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if err := manager.Do(context.Background(), "k", func(context.Context) {}); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestManagerStopAllRejectsLaterTasks(t *testing.T) {
	manager := NewManager(4)
	if err := manager.Do(context.Background(), "k", func(context.Context) {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	manager.StopAll()

	ran := false
	err := manager.Do(context.Background(), "other", func(context.Context) { ran = true })
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if ran {
		t.Fatalf("task ran after StopAll")
	}
	if n := workerCount(manager); n != 0 {
		t.Fatalf("worker spawned after StopAll: %d live", n)
	}
}

func TestManagerDoNeverHangsAcrossStopAll(t *testing.T) {
	for round := 0; round < 50; round++ {
		manager := NewManager(8)
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- manager.Do(context.Background(), "k", func(context.Context) {})
			}()
		}
		manager.StopAll()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: Do blocked after StopAll", round)
		}
		close(errs)
		for err := range errs {
			if err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, ErrQueueFull) {
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
	}
}

package oncemap_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bilusteknoloji/pipg/internal/oncemap"
)

func TestRegisterFirstCallerDoesWork(t *testing.T) {
	m := oncemap.New[string, int]()

	alreadyInFlight := m.Register("flask")
	if alreadyInFlight {
		t.Fatal("expected first Register to return false")
	}

	m.Done("flask", 42, nil)

	v, err := m.Wait(context.Background(), "flask")
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	if v != 42 {
		t.Errorf("value = %d, want 42", v)
	}
}

func TestConcurrentRegisterOnlyOneDoesWork(t *testing.T) {
	m := oncemap.New[string, int]()

	var mu sync.Mutex
	workers := 0

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if !m.Register("shared") {
				mu.Lock()
				workers++
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)
				m.Done("shared", 7, nil)
			}

			v, err := m.Wait(context.Background(), "shared")
			if err != nil {
				t.Errorf("Wait() error: %v", err)
				return
			}

			if v != 7 {
				t.Errorf("value = %d, want 7", v)
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	if workers != 1 {
		t.Errorf("workers = %d, want 1", workers)
	}
}

func TestWaitPropagatesError(t *testing.T) {
	m := oncemap.New[string, int]()
	wantErr := errors.New("boom")

	m.Register("flask")
	m.Done("flask", 0, wantErr)

	_, err := m.Wait(context.Background(), "flask")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	m := oncemap.New[string, int]()
	m.Register("flask") // never Done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Wait(ctx, "flask")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestForgetAllowsRetry(t *testing.T) {
	m := oncemap.New[string, int]()

	m.Register("flask")
	m.Done("flask", 0, errors.New("transient"))
	m.Forget("flask")

	alreadyInFlight := m.Register("flask")
	if alreadyInFlight {
		t.Fatal("expected Register after Forget to return false")
	}

	m.Done("flask", 99, nil)

	v, err := m.Wait(context.Background(), "flask")
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	if v != 99 {
		t.Errorf("value = %d, want 99", v)
	}
}

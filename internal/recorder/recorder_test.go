package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
)

type fakeUsageStore struct {
	mu      sync.Mutex
	entries []*domain.UsageLog
	err     error
}

func (s *fakeUsageStore) InsertUsageLog(_ context.Context, l *domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, l)
	return nil
}

func (s *fakeUsageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestRecordPersistsEntry(t *testing.T) {
	store := &fakeUsageStore{}
	r := NewAsyncRecorder(store, logger.New("error", false), 16)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r.Record(&domain.UsageLog{TenantID: "t-1", Path: "/reports", Method: "GET", StatusCode: 200})
	r.Stop()

	if store.count() != 1 {
		t.Fatalf("persisted entries = %d, want 1", store.count())
	}

	store.mu.Lock()
	entry := store.entries[0]
	store.mu.Unlock()
	if entry.ID == "" {
		t.Error("entry ID not filled in")
	}
	if entry.Timestamp.IsZero() {
		t.Error("entry timestamp not filled in")
	}
}

func TestStopDrainsBuffer(t *testing.T) {
	store := &fakeUsageStore{}
	r := NewAsyncRecorder(store, logger.New("error", false), 64)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		r.Record(&domain.UsageLog{TenantID: "t-1", Path: "/x"})
	}
	r.Stop()

	if store.count() != 20 {
		t.Errorf("persisted entries = %d, want 20", store.count())
	}
}

func TestRecordDropsWhenFull(t *testing.T) {
	store := &fakeUsageStore{}
	// Never started: the buffer fills and overflow must be dropped, not block.
	r := NewAsyncRecorder(store, logger.New("error", false), 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			r.Record(&domain.UsageLog{TenantID: "t-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on full buffer")
	}
}

func TestWriteErrorDoesNotStopWorker(t *testing.T) {
	store := &fakeUsageStore{err: errors.New("db down")}
	r := NewAsyncRecorder(store, logger.New("error", false), 16)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r.Record(&domain.UsageLog{TenantID: "t-1"})
	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	r.Record(&domain.UsageLog{TenantID: "t-2"})
	r.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	var sawT2 bool
	for _, e := range store.entries {
		if e.TenantID == "t-2" {
			sawT2 = true
		}
	}
	if !sawT2 {
		t.Error("worker did not recover after a write error")
	}
}

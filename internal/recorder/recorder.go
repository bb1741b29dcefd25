package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
)

// DefaultBufferSize is the channel capacity of the async recorder.
const DefaultBufferSize = 1024

// Recorder accepts usage entries off the request path.
type Recorder interface {
	Record(entry *domain.UsageLog)
}

// UsageStore persists usage entries.
type UsageStore interface {
	InsertUsageLog(ctx context.Context, l *domain.UsageLog) error
}

// AsyncRecorder buffers usage entries and writes them from a single worker
// goroutine. Record never blocks the request path: when the buffer is full
// the entry is dropped with a warning. Write errors are logged and swallowed.
type AsyncRecorder struct {
	store  UsageStore
	logger logger.Logger
	ch     chan *domain.UsageLog
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewAsyncRecorder creates a recorder with the given buffer size.
func NewAsyncRecorder(store UsageStore, log logger.Logger, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &AsyncRecorder{
		store:  store,
		logger: log,
		ch:     make(chan *domain.UsageLog, buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Record enqueues an entry. A missing ID or timestamp is filled in here so
// callers only provide what they observed.
func (r *AsyncRecorder) Record(entry *domain.UsageLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("usage recorder buffer full, dropping entry",
			logger.String("tenant_id", entry.TenantID),
			logger.String("path", entry.Path))
	}
}

// Start launches the worker goroutine.
func (r *AsyncRecorder) Start(ctx context.Context) error {
	go func() {
		defer close(r.doneCh)
		for {
			select {
			case entry := <-r.ch:
				r.write(ctx, entry)
			case <-r.stopCh:
				r.drain()
				return
			case <-ctx.Done():
				r.drain()
				return
			}
		}
	}()
	return nil
}

// Stop signals the worker and waits for buffered entries to be flushed.
func (r *AsyncRecorder) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// drain flushes whatever is still buffered. Shutdown writes get their own
// deadline since the request context may already be cancelled.
func (r *AsyncRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case entry := <-r.ch:
			r.write(ctx, entry)
		default:
			return
		}
	}
}

func (r *AsyncRecorder) write(ctx context.Context, entry *domain.UsageLog) {
	if err := r.store.InsertUsageLog(ctx, entry); err != nil {
		r.logger.Error("failed to persist usage entry",
			logger.String("tenant_id", entry.TenantID),
			logger.String("path", entry.Path),
			logger.Error(err))
	}
}

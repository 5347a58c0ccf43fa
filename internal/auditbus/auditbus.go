// Package auditbus fans out obslog.AuditRecord emissions to in-process
// subscribers: a local audit-log file sink, a metrics counter, a future
// remote shipper. Grounded on the teacher's system/core.Bus: concurrent
// per-handler dispatch under a timeout, errors joined rather than
// short-circuited, generalized from the teacher's multi-engine
// event/data/compute registry down to the single concern this platform
// needs - one topic, many subscribers.
package auditbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teaclave-go/platform/internal/obslog"
)

// DefaultTimeout bounds how long a single subscriber may block Publish.
const DefaultTimeout = 5 * time.Second

// Handler receives one audit record. A Handler should not retain rec's
// backing memory beyond the call since the bus reuses nothing but may be
// extended to pool records later.
type Handler func(ctx context.Context, rec obslog.AuditRecord) error

// Bus is an in-process publish/subscribe fan-out for audit records.
type Bus struct {
	mu      sync.RWMutex
	subs    []Handler
	timeout time.Duration
}

// New builds a Bus with the default per-subscriber timeout.
func New() *Bus {
	return &Bus{timeout: DefaultTimeout}
}

// SetTimeout overrides the per-subscriber dispatch timeout.
func (b *Bus) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// Subscribe registers handler to receive every record published from now on.
func (b *Bus) Subscribe(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, handler)
}

// Publish fans rec out to every subscriber concurrently, each under its own
// timeout derived from ctx, and joins any failures rather than aborting
// early - a slow or failing sink must never block the audit trail for the
// others.
func (b *Bus) Publish(ctx context.Context, rec obslog.AuditRecord) error {
	b.mu.RLock()
	subs := append([]Handler(nil), b.subs...)
	timeout := b.timeout
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	errCh := make(chan error, len(subs))
	var wg sync.WaitGroup
	for i, h := range subs {
		wg.Add(1)
		go func(idx int, handler Handler) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := handler(hctx, rec); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					errCh <- fmt.Errorf("subscriber[%d]: timeout after %v", idx, timeout)
					return
				}
				errCh <- fmt.Errorf("subscriber[%d]: %w", idx, err)
			}
		}(i, h)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoggerSink builds a Handler that re-emits rec through log at Info level,
// the minimal always-on sink every deployment wires so the audit trail
// lands in the same place as operational logs even with zero external
// subscribers configured.
func LoggerSink(log *obslog.Logger) Handler {
	return func(ctx context.Context, rec obslog.AuditRecord) error {
		log.Audit(ctx, rec)
		return nil
	}
}

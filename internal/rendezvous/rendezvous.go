// Package rendezvous implements the one-shot per-correlation-ID result
// channel used by the CLI's single-shot "process" mode: a replacement
// for the original's busy-wait ("while not processing_complete:
// time.sleep(1)") with a blocking channel receive instead, per the
// spec's own design notes.
package rendezvous

import (
	"context"
	"sync"
)

// Result is what a watched correlation ID eventually resolves to.
type Result struct {
	OutputPath string
	Err        error
}

// Table hands out one-shot result channels keyed by correlation ID.
type Table struct {
	mu   sync.Mutex
	wait map[string]chan Result
}

// NewTable constructs an empty table.
func NewTable() *Table {
	return &Table{wait: make(map[string]chan Result)}
}

// Register returns a channel that will receive exactly one Result for
// correlationID once Resolve is called with it.
func (t *Table) Register(correlationID string) <-chan Result {
	ch := make(chan Result, 1)
	t.mu.Lock()
	t.wait[correlationID] = ch
	t.mu.Unlock()
	return ch
}

// Resolve delivers result to the channel registered for correlationID, if
// any, and forgets the registration. Safe to call even if nothing is
// registered (e.g. a _FAILED for an ID the CLI never watched).
func (t *Table) Resolve(correlationID string, result Result) {
	t.mu.Lock()
	ch, ok := t.wait[correlationID]
	if ok {
		delete(t.wait, correlationID)
	}
	t.mu.Unlock()

	if ok {
		ch <- result
	}
}

// Forget removes correlationID's registration without delivering a
// result, so a request that never resolves (a timed-out or abandoned
// Await) doesn't leak its map entry and channel for the life of the
// process.
func (t *Table) Forget(correlationID string) {
	t.mu.Lock()
	delete(t.wait, correlationID)
	t.mu.Unlock()
}

// Await blocks until correlationID resolves or ctx is done, forgetting
// the registration in table if ctx expires first.
func Await(ctx context.Context, table *Table, correlationID string, ch <-chan Result) (Result, error) {
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		table.Forget(correlationID)
		return Result{}, ctx.Err()
	}
}

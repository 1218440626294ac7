package rendezvous

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolveDeliversToRegisteredWaiter(t *testing.T) {
	table := NewTable()
	ch := table.Register("corr-1")

	table.Resolve("corr-1", Result{OutputPath: "podcasts/out_clean.mp3"})

	result, err := Await(context.Background(), table, "corr-1", ch)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.OutputPath != "podcasts/out_clean.mp3" {
		t.Fatalf("unexpected output path: %q", result.OutputPath)
	}
}

func TestResolveWithoutRegistrationIsANoOp(t *testing.T) {
	table := NewTable()
	// Must not panic or block.
	table.Resolve("unknown-corr", Result{Err: errors.New("boom")})
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	table := NewTable()
	ch := table.Register("corr-1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Await(ctx, table, "corr-1", ch)
	if err == nil {
		t.Fatalf("expected Await to return an error once the context deadline passes")
	}

	table.mu.Lock()
	_, stillRegistered := table.wait["corr-1"]
	table.mu.Unlock()
	if stillRegistered {
		t.Fatalf("expected Await to forget the registration once the context expired")
	}
}

func TestResolveIsOneShot(t *testing.T) {
	table := NewTable()
	ch := table.Register("corr-1")

	table.Resolve("corr-1", Result{OutputPath: "a"})
	// A second Resolve for the same (now-forgotten) id must not block or panic.
	table.Resolve("corr-1", Result{OutputPath: "b"})

	result, err := Await(context.Background(), table, "corr-1", ch)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.OutputPath != "a" {
		t.Fatalf("the first Resolve's result should be the one observed, got %q", result.OutputPath)
	}
}

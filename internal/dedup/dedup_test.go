package dedup

import (
	"path/filepath"
	"testing"
)

func TestTryBeginMarksInFlightOnce(t *testing.T) {
	s, err := NewSet(filepath.Join(t.TempDir(), "dedup.json"))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	alreadyProcessed, alreadyInFlight := s.TryBegin("episode-1")
	if alreadyProcessed || alreadyInFlight {
		t.Fatalf("first TryBegin should report both false, got (%v, %v)", alreadyProcessed, alreadyInFlight)
	}

	alreadyProcessed, alreadyInFlight = s.TryBegin("episode-1")
	if alreadyProcessed {
		t.Fatalf("item should not be processed yet")
	}
	if !alreadyInFlight {
		t.Fatalf("second TryBegin for the same item should report already in flight")
	}
}

func TestCompleteMovesToProcessed(t *testing.T) {
	s, err := NewSet(filepath.Join(t.TempDir(), "dedup.json"))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	s.TryBegin("episode-1")
	if err := s.Complete("episode-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if s.IsInFlight("episode-1") {
		t.Fatalf("item should no longer be in flight after Complete")
	}
	if !s.IsProcessed("episode-1") {
		t.Fatalf("item should be processed after Complete")
	}

	alreadyProcessed, _ := s.TryBegin("episode-1")
	if !alreadyProcessed {
		t.Fatalf("TryBegin on a processed item should report alreadyProcessed")
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	s, err := NewSet(filepath.Join(t.TempDir(), "dedup.json"))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	s.TryBegin("episode-1")
	s.Release("episode-1")

	alreadyProcessed, alreadyInFlight := s.TryBegin("episode-1")
	if alreadyProcessed || alreadyInFlight {
		t.Fatalf("item released from in_flight should be eligible to begin again, got (%v, %v)", alreadyProcessed, alreadyInFlight)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.json")

	s1, err := NewSet(path)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	s1.TryBegin("episode-1")
	if err := s1.Complete("episode-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s2, err := NewSet(path)
	if err != nil {
		t.Fatalf("NewSet (reload): %v", err)
	}
	if !s2.IsProcessed("episode-1") {
		t.Fatalf("a freshly loaded Set should see episode-1 as processed after persistence")
	}
	if s2.IsInFlight("episode-1") {
		t.Fatalf("in_flight state must not survive a reload")
	}
}

func TestNewSetToleratesMissingFile(t *testing.T) {
	s, err := NewSet(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("NewSet should tolerate a missing file, got: %v", err)
	}
	if s.IsProcessed("anything") {
		t.Fatalf("a fresh Set should have nothing processed")
	}
}

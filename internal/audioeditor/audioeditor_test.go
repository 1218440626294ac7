package audioeditor

import (
	"testing"

	"podcleaner/internal/models"
)

func adSeg(start, end float64) models.Segment {
	return models.Segment{Start: start, End: end, IsAd: true}
}

func nonAdSeg(start, end float64) models.Segment {
	return models.Segment{Start: start, End: end, IsAd: false}
}

func TestMergeCutIntervalsExtendsWithinMaxGap(t *testing.T) {
	segments := []models.Segment{
		adSeg(10, 20),
		adSeg(25, 30), // gap of 5, within default maxGap of 20
	}

	cuts := MergeCutIntervals(segments, 5.0, 20.0)

	if len(cuts) != 1 {
		t.Fatalf("expected the two close ad segments to merge into one interval, got %+v", cuts)
	}
	if cuts[0].Start != 10 || cuts[0].End != 30 {
		t.Fatalf("merged interval should span the full range, got %+v", cuts[0])
	}
}

func TestMergeCutIntervalsSplitsAcrossLargeGap(t *testing.T) {
	segments := []models.Segment{
		adSeg(0, 10),
		adSeg(50, 60),
	}

	cuts := MergeCutIntervals(segments, 5.0, 20.0)

	if len(cuts) != 2 {
		t.Fatalf("expected two disjoint intervals, got %+v", cuts)
	}
}

func TestMergeCutIntervalsDiscardsBelowMinDuration(t *testing.T) {
	segments := []models.Segment{
		adSeg(0, 2), // 2s, below the 5s minimum and isolated
	}

	cuts := MergeCutIntervals(segments, 5.0, 20.0)

	if len(cuts) != 0 {
		t.Fatalf("a sub-threshold isolated interval should be discarded, got %+v", cuts)
	}
}

func TestMergeCutIntervalsIgnoresNonAdSegments(t *testing.T) {
	segments := []models.Segment{
		nonAdSeg(0, 10),
		adSeg(10, 20),
		nonAdSeg(20, 30),
	}

	cuts := MergeCutIntervals(segments, 5.0, 20.0)

	if len(cuts) != 1 || cuts[0].Start != 10 || cuts[0].End != 20 {
		t.Fatalf("only the ad-marked segment should become a cut interval, got %+v", cuts)
	}
}

func TestMergeCutIntervalsResultIsSortedAndDisjoint(t *testing.T) {
	segments := []models.Segment{
		adSeg(100, 110),
		adSeg(0, 10),
		adSeg(200, 215),
	}

	cuts := MergeCutIntervals(segments, 5.0, 20.0)

	for i := 1; i < len(cuts); i++ {
		if cuts[i].Start < cuts[i-1].End {
			t.Fatalf("cuts must be sorted and disjoint, got %+v", cuts)
		}
	}
	if len(cuts) != 3 {
		t.Fatalf("expected 3 separate intervals, got %+v", cuts)
	}
}

func TestMergeCutIntervalsEmptyWhenNoAds(t *testing.T) {
	segments := []models.Segment{nonAdSeg(0, 10), nonAdSeg(10, 20)}
	cuts := MergeCutIntervals(segments, 5.0, 20.0)
	if cuts != nil {
		t.Fatalf("expected no cut intervals, got %+v", cuts)
	}
}

func TestComplementIsEmptyWhenCutsSpanTheEntireDuration(t *testing.T) {
	cuts := []Interval{{Start: 0, End: 100}}
	keep := complement(cuts, 100)
	if len(keep) != 0 {
		t.Fatalf("a cut set spanning the whole input should leave nothing to keep, got %+v", keep)
	}
}

func TestComplementKeepsTrailingSpanUpToTotalDuration(t *testing.T) {
	cuts := []Interval{{Start: 0, End: 40}}
	keep := complement(cuts, 100)
	if len(keep) != 1 || keep[0].start != 40 || keep[0].end != 100 {
		t.Fatalf("expected one trailing span [40,100), got %+v", keep)
	}
}

func TestRemoveSegmentsErrorsWhenCutsRemoveTheEntireInput(t *testing.T) {
	e := NewFFmpegEditor("ffmpeg")
	err := e.RemoveSegments("in.mp3", []Interval{{Start: 0, End: 100}}, 100, "out.mp3")
	if err == nil {
		t.Fatalf("expected an error when the cut set removes the entire input")
	}
}

func TestCleanOutputKeyAppendsSuffixBeforeExtension(t *testing.T) {
	got := cleanOutputKey("podcasts/abc123.mp3")
	want := "podcasts/abc123_clean.mp3"
	if got != want {
		t.Fatalf("cleanOutputKey(%q) = %q, want %q", "podcasts/abc123.mp3", got, want)
	}
}

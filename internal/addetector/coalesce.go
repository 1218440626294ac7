package addetector

import (
	"strings"

	"podcleaner/internal/models"
)

// DefaultTransitionPhrases are substrings whose presence in a segment's
// text signals the start of an ad block. Carried over verbatim from the
// original implementation's hard-coded German reference set; per
// spec.md's design notes these are configuration, not a constant — see
// Config.TransitionPhrases.
var DefaultTransitionPhrases = []string{
	"nach einer kurzen unterbrechung",
	"bleiben sie dran",
	"wir sind gleich wieder da",
	"gleich geht es weiter",
}

// DefaultPromotionalIndicators are substrings that extend an ad block
// once started. Same provenance as DefaultTransitionPhrases.
var DefaultPromotionalIndicators = []string{
	"tickets",
	"infos",
	"anmeldung",
	"weitere informationen",
	"sparen sie",
	"rabatt",
	"vorteilscode",
	"jetzt buchen",
	"besuchen sie",
	"mehr erfahren",
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Block is a maximal run of consecutive ad-marked segments within the
// time-gap tolerance, used for logging/serialization of ad_detect runs.
type Block struct {
	Start float64
	End   float64
	Count int
}

// MergeAdjacentAds coalesces the LLM's per-segment ad predictions with
// heuristic transition/promotional cues, mutating segments' IsAd in
// place. It implements the algorithm from spec §4.5:
//
// For every segment i not already marked: if its text matches a
// transition phrase, mark i and walk forward, marking each subsequent
// segment j while j is already marked, or j's text has a promotional
// indicator, or segment j+1 is already marked and starts within maxGap
// of j's end — stopping at the first segment that matches none of those.
func MergeAdjacentAds(segments []models.Segment, transitionPhrases, promotionalIndicators []string, maxGap float64) {
	marked := make(map[int]bool, len(segments))
	for i, s := range segments {
		if s.IsAd {
			marked[i] = true
		}
	}

	for i := 0; i < len(segments); i++ {
		if marked[i] {
			continue
		}
		if !containsAny(segments[i].Text, transitionPhrases) {
			continue
		}

		marked[i] = true
		j := i + 1
		for j < len(segments) {
			if marked[j] || containsAny(segments[j].Text, promotionalIndicators) {
				marked[j] = true
				j++
				continue
			}
			if j+1 < len(segments) && marked[j+1] && segments[j+1].Start-segments[j].End <= maxGap {
				marked[j] = true
				j++
				continue
			}
			break
		}
	}

	for i := range segments {
		if marked[i] {
			segments[i].IsAd = true
		}
	}
}

// GetAdBlocks groups consecutive ad-marked segments into blocks whenever
// the gap to the next ad-marked segment is within maxGap; a non-ad
// segment always breaks the current block.
func GetAdBlocks(segments []models.Segment, maxGap float64) []Block {
	var blocks []Block
	var current *Block

	for _, s := range segments {
		if !s.IsAd {
			if current != nil {
				blocks = append(blocks, *current)
				current = nil
			}
			continue
		}

		if current == nil {
			current = &Block{Start: s.Start, End: s.End, Count: 1}
			continue
		}

		if s.Start-current.End <= maxGap {
			current.End = s.End
			current.Count++
		} else {
			blocks = append(blocks, *current)
			current = &Block{Start: s.Start, End: s.End, Count: 1}
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}

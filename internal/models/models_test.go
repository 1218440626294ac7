package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAdAndNonAdSegments(t *testing.T) {
	transcript := Transcript{
		Segments: []Segment{
			{ID: 0, Text: "intro", IsAd: false},
			{ID: 1, Text: "sponsor message", IsAd: true},
			{ID: 2, Text: "main content", IsAd: false},
		},
		ProcessedAt: time.Now().UTC(),
	}

	ads := transcript.AdSegments()
	require.Len(t, ads, 1)
	assert.Equal(t, 1, ads[0].ID)

	nonAds := transcript.NonAdSegments()
	require.Len(t, nonAds, 2)
	assert.Equal(t, 0, nonAds[0].ID)
	assert.Equal(t, 2, nonAds[1].ID)
}

func TestTranscriptJSONRoundTrip(t *testing.T) {
	original := Transcript{
		Segments: []Segment{
			{ID: 0, Text: "hello", Start: 0, End: 1.5, IsAd: false},
		},
		ProcessedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Segments, 1)
	assert.Equal(t, "hello", decoded.Segments[0].Text)
	assert.True(t, decoded.ProcessedAt.Equal(original.ProcessedAt))
}

func TestRequestStateRecordsFailedStep(t *testing.T) {
	rs := RequestState{
		RequestID: "r-1",
		Status:    StatusProcessing,
		Steps: []RequestStep{
			{Name: "submitted", Status: StepCompleted},
		},
	}

	rs.Steps = append(rs.Steps, RequestStep{Name: "download", Status: StepFailed, Error: "404"})

	assert.Equal(t, StepFailed, rs.Steps[len(rs.Steps)-1].Status)
}

package audioeditor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"podcleaner/internal/logger"
)

// FFmpegEditor is the concrete Editor backed by a system ffmpeg binary,
// grounded on the same exec.CommandContext + stderr-draining pattern the
// pack's radio streaming encoder uses for its own ffmpeg invocations.
type FFmpegEditor struct {
	binary string
}

// NewFFmpegEditor returns an editor that shells out to binary (typically
// "ffmpeg" on PATH).
func NewFFmpegEditor(binary string) *FFmpegEditor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEditor{binary: binary}
}

// RemoveSegments keeps the complement of cuts and concatenates it into a
// single output file, via ffmpeg's atrim+concat filtergraph: one atrim
// per kept span, concatenated in order, preserving source metadata.
func (e *FFmpegEditor) RemoveSegments(inputPath string, cuts []Interval, totalDuration float64, outputPath string) error {
	keep := complement(cuts, totalDuration)
	if len(keep) == 0 {
		return fmt.Errorf("cut set removes the entire input")
	}

	var filter strings.Builder
	labels := make([]string, 0, len(keep))
	for i, span := range keep {
		label := fmt.Sprintf("a%d", i)
		if span.end > 0 {
			fmt.Fprintf(&filter, "[0:a]atrim=start=%f:end=%f,asetpts=PTS-STARTPTS[%s];", span.start, span.end, label)
		} else {
			fmt.Fprintf(&filter, "[0:a]atrim=start=%f,asetpts=PTS-STARTPTS[%s];", span.start, label)
		}
		labels = append(labels, "["+label+"]")
	}
	fmt.Fprintf(&filter, "%sconcat=n=%d:v=0:a=1[out]", strings.Join(labels, ""), len(labels))

	args := []string{
		"-y",
		"-i", inputPath,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-map_metadata", "0",
		outputPath,
	}

	logger.Info("ffmpeg_remove_segments", "input", inputPath, "cuts", len(cuts))

	cmd := exec.CommandContext(context.Background(), e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Error("ffmpeg_failed", "error", err, "stderr", stderr.String())
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

type span struct {
	start float64
	end   float64 // 0 with totalDuration unknown means "to end of input"
}

// complement turns the sorted, disjoint cut intervals into the sorted,
// disjoint spans that should be kept: everything before the first cut,
// between cuts, and after the last cut up to totalDuration. A
// totalDuration <= 0 (unknown) falls back to an open-ended trailing
// span; otherwise a cut set that reaches totalDuration leaves no
// trailing span at all, so a cut set spanning the entire input
// correctly yields zero kept spans instead of a spurious empty one.
func complement(cuts []Interval, totalDuration float64) []span {
	var keep []span
	cursor := 0.0
	for _, c := range cuts {
		if c.Start > cursor {
			keep = append(keep, span{start: cursor, end: c.Start})
		}
		if c.End > cursor {
			cursor = c.End
		}
	}
	if totalDuration <= 0 {
		keep = append(keep, span{start: cursor, end: 0})
	} else if cursor < totalDuration {
		keep = append(keep, span{start: cursor, end: totalDuration})
	}
	return keep
}

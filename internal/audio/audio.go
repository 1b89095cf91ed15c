// Package audio owns the narration side of the pipeline: every step must
// have a fully written clip with a known duration before capture starts,
// and the sum of all durations must fit the target duration.
package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/ivlev/tour2video/internal/tourspec"
)

// Info is one step's narration clip.
type Info struct {
	Path     string
	Duration float64
}

// Synthesizer produces a step-id → narration clip mapping for a tour.
// Implementations differ in where the audio comes from (cache reuse, a
// local engine, a remote GPU worker); the capture pipeline only consumes
// the mapping.
type Synthesizer interface {
	Synthesize(ctx context.Context, tour *tourspec.Tour, audioDir string) (map[string]Info, error)
}

// SyncError reports missing, unreadable or overlong narration audio. It is
// always fatal and always raised before any capture work begins.
type SyncError struct {
	StepID string
	Reason string
}

func (e *SyncError) Error() string {
	if e.StepID == "" {
		return "audio synchronization: " + e.Reason
	}
	return fmt.Sprintf("audio synchronization: step %s: %s", e.StepID, e.Reason)
}

// Validate checks a synthesized mapping against the tour's contract:
// every narration-bearing step mapped to a stable, non-empty file, and the
// narration total within target_duration_seconds.
func Validate(tour *tourspec.Tour, mapping map[string]Info) error {
	total := 0.0
	for _, step := range tour.Steps {
		info, ok := mapping[step.ID]
		if !ok {
			return &SyncError{StepID: step.ID, Reason: "no audio entry"}
		}
		stat, err := os.Stat(info.Path)
		if err != nil {
			return &SyncError{StepID: step.ID, Reason: fmt.Sprintf("audio file unreadable: %v", err)}
		}
		if stat.Size() == 0 {
			return &SyncError{StepID: step.ID, Reason: "audio file is empty"}
		}
		if info.Duration <= 0 {
			return &SyncError{StepID: step.ID, Reason: "audio duration must be > 0"}
		}
		total += info.Duration
	}

	if target := tour.Meta.TargetDuration; total > target {
		return &SyncError{Reason: fmt.Sprintf(
			"total narration %.2fs exceeds target_duration_seconds %.2fs", total, target)}
	}
	return nil
}

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// CacheReader reuses narration clips from a previous run's audio directory
// instead of synthesizing. Backs the --skip-tts flag.
type CacheReader struct {
	Probe media.DurationProber
	Log   *slog.Logger
}

func (c *CacheReader) Synthesize(ctx context.Context, tour *tourspec.Tour, audioDir string) (map[string]Info, error) {
	mapping := make(map[string]Info, len(tour.Steps))
	for i, step := range tour.Steps {
		path := filepath.Join(audioDir, fmt.Sprintf("step-%s.wav", step.ID))
		duration, err := c.Probe(ctx, path)
		if err != nil {
			return nil, &SyncError{StepID: step.ID,
				Reason: fmt.Sprintf("cached audio missing or unreadable: %v", err)}
		}
		c.Log.Info("reused narration clip",
			"phase", "B", "step", step.ID,
			"index", fmt.Sprintf("%d/%d", i+1, len(tour.Steps)),
			"duration_s", fmt.Sprintf("%.2f", duration))
		mapping[step.ID] = Info{Path: path, Duration: duration}
	}
	return mapping, nil
}

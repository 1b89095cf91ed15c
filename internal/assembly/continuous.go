package assembly

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/media"
)

// assembleContinuous lays every step's narration over the single shared
// recording at its captured offset, mixes the tracks, and truncates at
// the hard maximum duration.
func (e *Engine) assembleContinuous(ctx context.Context, results []capture.StepResult, finalPath string) error {
	e.Log.Info("assembling continuous capture", "phase", "D", "steps", len(results))

	var source string
	for _, r := range results {
		if r.ClipPath != "" {
			source = r.ClipPath
			break
		}
	}
	if source == "" {
		return fmt.Errorf("missing continuous capture clip for assembly")
	}

	normalized := filepath.Join(e.Dirs.Assembly, "continuous-normalized.mp4")
	if err := e.normalizeClip(ctx, source, normalized); err != nil {
		return err
	}

	args := []string{"-y", "-i", normalized}
	for _, r := range results {
		args = append(args, "-i", r.AudioPath)
	}
	args = append(args,
		"-filter_complex", continuousMixFilter(results, e.Tour.Output.LoudnormEnabled()),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		"-t", fmt.Sprintf("%.3f", e.Tour.Meta.MaxDuration),
		finalPath,
	)
	if err := media.Run(ctx, "assemble continuous tour video", "ffmpeg", args...); err != nil {
		return err
	}

	os.Remove(source)
	return nil
}

// continuousMixFilter delays each narration track to its step's offset
// plus the lead-in, then mixes them over the run's length.
func continuousMixFilter(results []capture.StepResult, loudnorm bool) string {
	parts := make([]string, 0, len(results)+2)
	var labels strings.Builder
	for i, r := range results {
		delay := narrationDelayMS(r.VideoOffset)
		label := fmt.Sprintf("a%d", i+1)
		parts = append(parts, fmt.Sprintf("[%d:a]adelay=%d|%d[%s]", i+1, delay, delay, label))
		labels.WriteString("[" + label + "]")
	}
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest[amixed]",
		labels.String(), len(results)))
	if loudnorm {
		parts = append(parts, "[amixed]"+loudnormFilter+"[aout]")
	} else {
		parts = append(parts, "[amixed]anull[aout]")
	}
	return strings.Join(parts, ";")
}

func narrationDelayMS(videoOffset float64) int {
	return int(math.Round((videoOffset + narrationLeadIn) * 1000))
}

package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Tail length of subprocess output kept in error messages. Enough to
// diagnose an ffmpeg failure without dumping the whole transcript.
const errTailBytes = 1200

// Run executes a media subprocess and returns a descriptive error carrying
// the tail of its combined output on non-zero exit.
func Run(ctx context.Context, description string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > errTailBytes {
			tail = tail[len(tail)-errTailBytes:]
		}
		return fmt.Errorf("%s failed: %v: %s", description, err, strings.TrimSpace(tail))
	}
	return nil
}

// DurationProber reports the playable length of a media file in seconds.
// The ffprobe-backed implementation is the production one; tests substitute
// a canned prober.
type DurationProber func(ctx context.Context, path string) (float64, error)

// ProbeDuration asks ffprobe for a file's container duration.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration for %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned invalid duration for %s: %w", path, err)
	}
	return duration, nil
}

// BestH264Encoder probes ffmpeg for hardware H.264 encoders and falls back
// to libx264.
func BestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

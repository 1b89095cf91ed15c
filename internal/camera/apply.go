package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/tour2video/internal/media"
)

const (
	outputFPS = 30
	sourceW   = 1920
	sourceH   = 1080
)

// Apply re-encodes the video through the compiled filter graph and swaps
// the result back into place. With fewer than two keyframes, or when every
// segment collapses to zero length, the input is left untouched.
func Apply(ctx context.Context, log *slog.Logger, videoPath string, keyframes []Keyframe, assemblyDir string) error {
	if len(keyframes) < 2 {
		log.Info("skipping virtual camera, nothing to animate", "phase", "E")
		return nil
	}
	segments := BuildSegments(keyframes, outputFPS)
	if len(segments) == 0 {
		log.Info("skipping virtual camera, no renderable segments", "phase", "E")
		return nil
	}

	// The graph grows with the step count, so it goes through a script
	// file instead of the command line.
	script := filepath.Join(assemblyDir, "zoom-filter.txt")
	if err := os.WriteFile(script, []byte(FilterComplex(segments, sourceW, sourceH)), 0o644); err != nil {
		return fmt.Errorf("write filter script: %w", err)
	}

	ext := filepath.Ext(videoPath)
	stem := strings.TrimSuffix(filepath.Base(videoPath), ext)
	zoomed := filepath.Join(assemblyDir, stem+"-zoomed"+ext)

	err := media.Run(ctx, "apply virtual camera", "ffmpeg",
		"-y",
		"-i", videoPath,
		"-/filter_complex", script,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		zoomed,
	)
	if err != nil {
		return err
	}

	// Replace in place; the final output may live on another filesystem,
	// so rename is not an option.
	if err := overwriteFile(zoomed, videoPath); err != nil {
		return fmt.Errorf("swap in zoomed video: %w", err)
	}
	os.Remove(zoomed)
	log.Info("virtual camera applied", "phase", "E", "segments", len(segments))
	return nil
}

func overwriteFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

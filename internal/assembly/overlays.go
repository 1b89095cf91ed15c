package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/tour2video/internal/media"
)

// ApplyOverlays prepends the intro and/or appends the outro clip to the
// assembled video, in place. A tour with neither configured is a no-op.
// Overlays are pre-rendered externally at 1920x1080; they are normalized
// here (with a silent mono track) so the stream-copy concat lines up.
func (e *Engine) ApplyOverlays(ctx context.Context, mainVideo string) error {
	intro := e.Tour.Output.IntroClip
	outro := e.Tour.Output.OutroClip
	if intro == "" && outro == "" {
		return nil
	}

	var pieces []string
	if intro != "" {
		normalized, err := e.normalizeOverlay(ctx, intro, "intro-normalized.mp4")
		if err != nil {
			return err
		}
		e.Log.Info("intro overlay added", "phase", "D", "clip", intro)
		pieces = append(pieces, normalized)
	}

	mainNormalized := filepath.Join(e.Dirs.Assembly, "main-for-concat.mp4")
	if err := e.normalizeMainForConcat(ctx, mainVideo, mainNormalized); err != nil {
		return err
	}
	pieces = append(pieces, mainNormalized)

	if outro != "" {
		normalized, err := e.normalizeOverlay(ctx, outro, "outro-normalized.mp4")
		if err != nil {
			return err
		}
		e.Log.Info("outro overlay added", "phase", "D", "clip", outro)
		pieces = append(pieces, normalized)
	}

	listPath := filepath.Join(e.Dirs.Assembly, "overlay-concat.txt")
	if err := os.WriteFile(listPath, []byte(renderConcatList(pieces)), 0o644); err != nil {
		return fmt.Errorf("write overlay concat list: %w", err)
	}

	ext := filepath.Ext(mainVideo)
	withOverlays := strings.TrimSuffix(mainVideo, ext) + "-with-overlays" + ext
	stream := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(withOverlays, ffmpeg.KwArgs{
			"c":        "copy",
			"movflags": "+faststart",
		})
	if err := e.runStream(ctx, "concatenate overlays with main video", stream); err != nil {
		return err
	}
	return os.Rename(withOverlays, mainVideo)
}

// normalizeOverlay transcodes one overlay clip to the shared format and
// gives it a silent audio track matching the narration's sample layout.
func (e *Engine) normalizeOverlay(ctx context.Context, src, outName string) (string, error) {
	path, err := resolveOutputPath(src)
	if err != nil {
		return "", fmt.Errorf("overlay clip: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("overlay clip not found: %s", path)
	}

	dst := filepath.Join(e.Dirs.Assembly, outName)
	args := []string{
		"-y",
		"-i", path,
		"-f", "lavfi",
		"-i", "anullsrc=r=24000:cl=mono",
		"-vf", normalizeVF,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-ac", "1",
		"-ar", "24000",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		dst,
	}
	if err := media.Run(ctx, fmt.Sprintf("normalize overlay %s", filepath.Base(path)), "ffmpeg", args...); err != nil {
		return "", err
	}
	return dst, nil
}

// normalizeMainForConcat re-encodes the assembled video so its streams
// match the overlay clips exactly; stream-copy concat tolerates nothing.
func (e *Engine) normalizeMainForConcat(ctx context.Context, src, dst string) error {
	stream := ffmpeg.Input(src).Output(dst, ffmpeg.KwArgs{
		"vf":       "fps=30,format=yuv420p",
		"c:v":      "libx264",
		"preset":   "medium",
		"crf":      "20",
		"ac":       "1",
		"ar":       "24000",
		"c:a":      "aac",
		"b:a":      "192k",
		"movflags": "+faststart",
	})
	return e.runStream(ctx, "normalize main video for overlay concat", stream)
}

// Package assembly turns capture results and narration audio into the
// final video file.
package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/tourspec"
	"github.com/ivlev/tour2video/internal/workdir"
)

// Every clip is normalized to one format before concatenation; the
// recorder emits variable-framerate webm that concat cannot stitch as-is.
const normalizeVF = "scale=1920:1080:force_original_aspect_ratio=decrease," +
	"pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=30,format=yuv420p"

const loudnormFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"

// Narration starts one second into each step's footage so the viewer sees
// the page settle before the voice begins.
const narrationLeadIn = 1.0

// Engine assembles normalized, narration-muxed clips into the output
// named by the tour. One Engine per run.
type Engine struct {
	Tour  *tourspec.Tour
	Dirs  *workdir.Layout
	Log   *slog.Logger
	Probe media.DurationProber
}

func (e *Engine) probe(ctx context.Context, path string) (float64, error) {
	if e.Probe != nil {
		return e.Probe(ctx, path)
	}
	return media.ProbeDuration(ctx, path)
}

// Assemble produces the final video and deletes the consumed source
// clips. Independent mode refuses to assemble around a failed step;
// continuous mode has already decided to keep going.
func (e *Engine) Assemble(ctx context.Context, results []capture.StepResult) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no steps available to assemble")
	}

	finalPath, err := resolveOutputPath(e.Tour.Output.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	if e.Tour.Settings.Mode == tourspec.ModeContinuous {
		err = e.assembleContinuous(ctx, results, finalPath)
	} else {
		err = e.assembleIndependent(ctx, results, finalPath)
	}
	if err != nil {
		return "", err
	}
	return finalPath, nil
}

func (e *Engine) assembleIndependent(ctx context.Context, results []capture.StepResult, finalPath string) error {
	e.Log.Info("assembling step clips", "phase", "D", "steps", len(results))

	for _, r := range results {
		if !r.Success || r.ClipPath == "" {
			return fmt.Errorf("cannot assemble failed step %s", r.StepID)
		}
	}

	// Normalize and mux steps concurrently; the concat below restores
	// spec order from the indexed slice.
	muxed := make([]string, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(media.EncodeThreads())
	for i, r := range results {
		g.Go(func() error {
			normalized := filepath.Join(e.Dirs.Assembly, fmt.Sprintf("step-%s-normalized.mp4", r.StepID))
			out := filepath.Join(e.Dirs.Assembly, fmt.Sprintf("step-%s-muxed.mp4", r.StepID))
			if err := e.normalizeClip(gctx, r.ClipPath, normalized); err != nil {
				return fmt.Errorf("step %s: %w", r.StepID, err)
			}
			if err := e.muxNarration(gctx, normalized, r.AudioPath, out, r.AudioDuration); err != nil {
				return fmt.Errorf("step %s: %w", r.StepID, err)
			}
			muxed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := e.concatClips(ctx, muxed, finalPath); err != nil {
		return err
	}

	for _, r := range results {
		os.Remove(r.ClipPath)
	}
	return nil
}

// normalizeClip transcodes one capture clip to the shared format,
// dropping any stray audio track.
func (e *Engine) normalizeClip(ctx context.Context, src, dst string) error {
	stream := ffmpeg.Input(src).Output(dst, ffmpeg.KwArgs{
		"an":     "",
		"vf":     normalizeVF,
		"c:v":    "libx264",
		"preset": "medium",
		"crf":    "20",
	})
	return e.runStream(ctx, fmt.Sprintf("normalize clip %s", filepath.Base(src)), stream)
}

// muxNarration lays the step's narration over its normalized clip. When
// the footage is shorter than the delayed narration, the last frame is
// cloned out so the voice never gets cut.
func (e *Engine) muxNarration(ctx context.Context, videoPath, audioPath, out string, audioDuration float64) error {
	base, err := e.probe(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("probe %s: %w", videoPath, err)
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-filter_complex", muxFilter(padSeconds(base, audioDuration)),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		out,
	}
	return media.Run(ctx, fmt.Sprintf("mux narration for %s", filepath.Base(videoPath)), "ffmpeg", args...)
}

// padSeconds is how much footage must be cloned onto the clip's tail so
// the lead-in plus the narration fits.
func padSeconds(clipDuration, audioDuration float64) float64 {
	extra := audioDuration + narrationLeadIn - clipDuration
	if extra < 0 {
		return 0
	}
	return extra
}

// muxFilter builds the per-step mux graph: optional tail padding on the
// video, a fixed lead-in delay on the narration.
func muxFilter(pad float64) string {
	var parts []string
	videoIn := "[0:v]"
	if pad > 0 {
		parts = append(parts, fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%.3f[v0]", pad))
		videoIn = "[v0]"
	}
	parts = append(parts, videoIn+"setpts=PTS-STARTPTS[v]")
	parts = append(parts, "[1:a]adelay=1000|1000,asetpts=PTS-STARTPTS[a]")
	return strings.Join(parts, ";")
}

// concatClips re-encodes the muxed clips into the final output, truncated
// at the target duration.
func (e *Engine) concatClips(ctx context.Context, clips []string, finalPath string) error {
	listPath := filepath.Join(e.Dirs.Assembly, "concat.txt")
	if err := os.WriteFile(listPath, []byte(renderConcatList(clips)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	kwargs := ffmpeg.KwArgs{
		"c:v":      "libx264",
		"preset":   "medium",
		"crf":      "20",
		"c:a":      "aac",
		"b:a":      "192k",
		"movflags": "+faststart",
		"t":        fmt.Sprintf("%.3f", e.Tour.Meta.TargetDuration),
	}
	if e.Tour.Output.LoudnormEnabled() {
		kwargs["af"] = loudnormFilter
	}
	stream := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(finalPath, kwargs)
	return e.runStream(ctx, "concatenate final tour video", stream)
}

// renderConcatList renders the ffmpeg concat-demuxer file list.
func renderConcatList(clips []string) string {
	var b strings.Builder
	for _, clip := range clips {
		b.WriteString("file '" + filepath.ToSlash(clip) + "'\n")
	}
	return b.String()
}

// runStream executes an ffmpeg-go graph through the shared subprocess
// wrapper so every invocation gets the same logging and error surface.
func (e *Engine) runStream(ctx context.Context, description string, stream *ffmpeg.Stream) error {
	args := stream.OverWriteOutput().GetArgs()
	return media.Run(ctx, description, "ffmpeg", args...)
}

// resolveOutputPath expands a leading ~ and absolutizes the tour's
// configured output path.
func resolveOutputPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("output path not set")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand output path: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	return abs, nil
}

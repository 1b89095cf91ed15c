package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// CommandSynthesizer drives a local text-to-speech engine through an
// external command, one invocation per step. The command template may use
// the placeholders {text}, {output}, {voice}, {speed} and {lang}.
//
// Output is written to a temp file in the destination directory and renamed
// into place so a crash mid-synthesis never leaves a half-written WAV that
// a later --skip-tts run would pick up.
type CommandSynthesizer struct {
	Template []string
	Probe    media.DurationProber
	Log      *slog.Logger
}

func (c *CommandSynthesizer) Synthesize(ctx context.Context, tour *tourspec.Tour, audioDir string) (map[string]Info, error) {
	if len(c.Template) == 0 {
		return nil, &SyncError{Reason: "no TTS command configured"}
	}

	mapping := make(map[string]Info, len(tour.Steps))
	for i, step := range tour.Steps {
		path := filepath.Join(audioDir, fmt.Sprintf("step-%s.wav", step.ID))
		if err := c.renderStep(ctx, tour, step, path); err != nil {
			return nil, err
		}
		duration, err := c.Probe(ctx, path)
		if err != nil {
			return nil, &SyncError{StepID: step.ID,
				Reason: fmt.Sprintf("synthesized audio unreadable: %v", err)}
		}
		c.Log.Info("generated narration clip",
			"phase", "B", "step", step.ID,
			"index", fmt.Sprintf("%d/%d", i+1, len(tour.Steps)),
			"duration_s", fmt.Sprintf("%.2f", duration))
		mapping[step.ID] = Info{Path: path, Duration: duration}
	}
	return mapping, nil
}

func (c *CommandSynthesizer) renderStep(ctx context.Context, tour *tourspec.Tour, step tourspec.Step, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), fmt.Sprintf("step-%s-*.wav", step.ID))
	if err != nil {
		return &SyncError{StepID: step.ID, Reason: fmt.Sprintf("create temp file: %v", err)}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	replacer := strings.NewReplacer(
		"{text}", strings.TrimSpace(step.Narration),
		"{output}", tmpPath,
		"{voice}", tour.Settings.Voice,
		"{speed}", fmt.Sprintf("%g", tour.Settings.SpeechSpeed),
		"{lang}", tour.Settings.Language,
	)
	args := make([]string, len(c.Template))
	for i, part := range c.Template {
		args[i] = replacer.Replace(part)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		tail := strings.TrimSpace(string(out))
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return &SyncError{StepID: step.ID, Reason: fmt.Sprintf("TTS command failed: %v: %s", err, tail)}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return &SyncError{StepID: step.ID, Reason: fmt.Sprintf("finalize audio file: %v", err)}
	}
	return syncDir(filepath.Dir(dest))
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer f.Close()
	_ = f.Sync()
	return nil
}

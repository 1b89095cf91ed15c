// Package capture drives the page driver through each tour step and
// produces one StepResult per step, in independent or continuous mode.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ivlev/tour2video/internal/audio"
	"github.com/ivlev/tour2video/internal/driver"
	"github.com/ivlev/tour2video/internal/tourspec"
	"github.com/ivlev/tour2video/internal/workdir"
)

// Orchestrator runs the capture phase. It owns the browser for the
// duration of Run and releases it on every exit path.
type Orchestrator struct {
	Tour    *tourspec.Tour
	Browser driver.Browser
	Dirs    *workdir.Layout
	Log     *slog.Logger

	// Now is the clock used for continuous-mode offsets. Tests substitute
	// a fake advanced by the fake driver's holds.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run captures every step in spec order and returns their results. In
// independent mode an exhausted retry budget aborts the run; in continuous
// mode per-step failures are recorded and the run continues.
func (o *Orchestrator) Run(ctx context.Context, audioMap map[string]audio.Info, dryRun bool) ([]StepResult, error) {
	if dryRun {
		o.Log.Info("dry-run enabled, skipping browser capture", "phase", "C")
		return o.dryRunResults(audioMap), nil
	}

	defer func() {
		if err := o.Browser.Close(); err != nil {
			o.Log.Warn("browser close failed", "phase", "C", "error", err)
		}
	}()

	if o.Tour.Settings.Mode == tourspec.ModeContinuous {
		return o.runContinuous(ctx, audioMap)
	}
	return o.runIndependent(ctx, audioMap)
}

func (o *Orchestrator) dryRunResults(audioMap map[string]audio.Info) []StepResult {
	results := make([]StepResult, 0, len(o.Tour.Steps))
	for _, step := range o.Tour.Steps {
		info := audioMap[step.ID]
		results = append(results, StepResult{
			StepID:        step.ID,
			AttemptCount:  0,
			Success:       true,
			AudioPath:     info.Path,
			AudioDuration: info.Duration,
		})
	}
	return results
}

func (o *Orchestrator) runIndependent(ctx context.Context, audioMap map[string]audio.Info) ([]StepResult, error) {
	maxRetries := o.Tour.Settings.MaxRetries
	results := make([]StepResult, 0, len(o.Tour.Steps))

	for i := range o.Tour.Steps {
		step := &o.Tour.Steps[i]
		info := audioMap[step.ID]
		stepStart := o.now()

		var lastErr error
		attempts := 0
		for attempts <= maxRetries {
			attempts++
			clipPath, err := o.captureStepClip(ctx, step, info.Duration, attempts)
			if err == nil {
				elapsed := o.now().Sub(stepStart)
				o.Log.Info("step captured", "phase", "C", "step", step.ID,
					"attempts", attempts, "elapsed_s", fmt.Sprintf("%.2f", elapsed.Seconds()))
				results = append(results, StepResult{
					StepID:        step.ID,
					AttemptCount:  attempts,
					Success:       true,
					ClipPath:      clipPath,
					AudioPath:     info.Path,
					AudioDuration: info.Duration,
					StepElapsed:   elapsed,
				})
				break
			}

			lastErr = err
			o.Log.Warn("step attempt failed", "phase", "C", "step", step.ID,
				"attempt", attempts, "error", err)

			if attempts <= maxRetries {
				o.Log.Info("retrying step", "phase", "C", "step", step.ID,
					"attempt", attempts, "max_retries", maxRetries)
				if attempts > 1 {
					if err := o.Browser.Restart(ctx); err != nil {
						return results, &StepError{StepID: step.ID, Attempts: attempts,
							Err: fmt.Errorf("browser restart: %w", err)}
					}
				}
				continue
			}

			results = append(results, StepResult{
				StepID:        step.ID,
				AttemptCount:  attempts,
				Success:       false,
				AudioPath:     info.Path,
				AudioDuration: info.Duration,
				StepElapsed:   o.now().Sub(stepStart),
			})
			return results, &StepError{StepID: step.ID, Attempts: attempts, Err: lastErr}
		}
	}
	return results, nil
}

// captureStepClip records one attempt of one step in a fresh recording
// context. The context is closed on every path; the clip survives only
// when finalize succeeds and produced a non-empty file.
func (o *Orchestrator) captureStepClip(ctx context.Context, step *tourspec.Step, audioDuration float64, attempt int) (string, error) {
	rec, err := o.Browser.NewRecording(ctx, o.recordOptions())
	if err != nil {
		return "", fmt.Errorf("open recording context: %w", err)
	}
	defer rec.Close()

	page := rec.Page()
	dest := o.Dirs.ClipPath(step.ID)

	if err := o.runStepScript(ctx, page, step); err != nil {
		o.failureScreenshot(ctx, page, step.ID, attempt)
		return "", err
	}

	if err := page.Hold(ctx, HoldDuration(tourspec.ModeIndependent, audioDuration)); err != nil {
		o.failureScreenshot(ctx, page, step.ID, attempt)
		return "", fmt.Errorf("hold: %w", err)
	}

	if err := o.finalizeRecording(ctx, rec, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (o *Orchestrator) runStepScript(ctx context.Context, page driver.Page, step *tourspec.Step) error {
	o.Log.Info("navigating", "phase", "C", "step", step.ID, "url", step.URL)
	if err := page.Navigate(ctx, step.URL); err != nil {
		return fmt.Errorf("navigate %s: %w", step.URL, err)
	}
	if err := page.RunAssertions(ctx, step.Assertions); err != nil {
		return fmt.Errorf("assertions: %w", err)
	}
	if err := page.RunActions(ctx, step.Actions); err != nil {
		return fmt.Errorf("actions: %w", err)
	}
	if step.Scroll != nil {
		if err := page.Scroll(ctx, step.Scroll); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
	}
	return nil
}

// finalizeRecording saves the clip, falling back to a direct copy of the
// driver's raw spool file when the save itself fails transiently.
func (o *Orchestrator) finalizeRecording(ctx context.Context, rec driver.Recording, dest string) error {
	if err := rec.FinalizeTo(ctx, dest); err != nil {
		o.Log.Warn("finalize failed, copying raw capture artifact", "phase", "C", "error", err)
		raw, rawErr := rec.RawArtifact()
		if rawErr != nil {
			return fmt.Errorf("recording unavailable: finalize: %v, raw artifact: %w", err, rawErr)
		}
		if copyErr := copyFile(raw, dest); copyErr != nil {
			return fmt.Errorf("copy raw capture artifact: %w", copyErr)
		}
	}
	stat, err := os.Stat(dest)
	if err != nil || stat.Size() == 0 {
		return fmt.Errorf("recorded clip missing or empty: %s", dest)
	}
	return nil
}

func (o *Orchestrator) failureScreenshot(ctx context.Context, page driver.Page, stepID string, attempt int) {
	path := o.Dirs.ScreenshotPath(stepID, attempt)
	if err := page.Screenshot(ctx, path); err != nil {
		o.Log.Warn("failure screenshot not captured", "phase", "C", "step", stepID, "error", err)
	}
}

func (o *Orchestrator) recordOptions() driver.RecordOptions {
	return driver.RecordOptions{
		Viewport: o.Tour.Settings.Viewport,
		ClipDir:  o.Dirs.Clips,
		Timeout:  time.Duration(o.Tour.Settings.StepTimeout * float64(time.Second)),
	}
}

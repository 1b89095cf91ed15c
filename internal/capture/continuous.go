package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ivlev/tour2video/internal/audio"
	"github.com/ivlev/tour2video/internal/driver"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// runContinuous records every step into one uninterrupted clip. Per-step
// failures cannot be retried (the shared recording cannot be rewound), so
// they are logged and recorded as success=false while the run continues.
func (o *Orchestrator) runContinuous(ctx context.Context, audioMap map[string]audio.Info) ([]StepResult, error) {
	rec, err := o.Browser.NewRecording(ctx, o.recordOptions())
	if err != nil {
		return nil, fmt.Errorf("open continuous recording context: %w", err)
	}
	defer rec.Close()

	page := rec.Page()
	results := make([]StepResult, 0, len(o.Tour.Steps))
	recordingStart := o.now()

	for i := range o.Tour.Steps {
		step := &o.Tour.Steps[i]
		info := audioMap[step.ID]
		stepStart := o.now()
		success := true

		if err := o.runContinuousStep(ctx, page, step, i == 0); err != nil {
			success = false
			o.Log.Warn("step failed in continuous mode, continuing",
				"phase", "C", "step", step.ID, "error", err)
			o.failureScreenshot(ctx, page, step.ID, 0)
		}

		// Hold even after a failed step so the narration timeline stays
		// aligned with what was actually recorded.
		if err := page.Hold(ctx, HoldDuration(tourspec.ModeContinuous, info.Duration)); err != nil {
			success = false
			o.Log.Warn("hold failed in continuous mode", "phase", "C", "step", step.ID, "error", err)
		}

		end := o.now()
		results = append(results, StepResult{
			StepID:        step.ID,
			AttemptCount:  1,
			Success:       success,
			AudioPath:     info.Path,
			AudioDuration: info.Duration,
			StepElapsed:   end.Sub(stepStart),
			VideoOffset:   stepStart.Sub(recordingStart).Seconds(),
			StepEndOffset: end.Sub(recordingStart).Seconds(),
		})
	}

	o.warnNarrationOverlap(results)

	dest := o.Dirs.ContinuousClipPath()
	if err := o.finalizeRecording(ctx, rec, dest); err != nil {
		return results, fmt.Errorf("continuous recording: %w", err)
	}
	if len(results) > 0 {
		results[0].ClipPath = dest
	}
	return results, nil
}

func (o *Orchestrator) runContinuousStep(ctx context.Context, page driver.Page, step *tourspec.Step, first bool) error {
	// Skip navigation when the page is already there: a redundant goto
	// shows a visible reload in the recording.
	target := strings.TrimRight(step.URL, "/")
	current := strings.TrimRight(page.URL(), "/")
	if first || current != target {
		o.Log.Info("navigating", "phase", "C", "step", step.ID, "url", step.URL, "mode", "continuous")
		if err := page.Navigate(ctx, step.URL); err != nil {
			return fmt.Errorf("navigate %s: %w", step.URL, err)
		}
	} else {
		o.Log.Info("reusing current page without navigation",
			"phase", "C", "step", step.ID, "mode", "continuous")
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

// warnNarrationOverlap flags steps whose narration would still be playing
// when the next step's begins. Holds cover their own narration by
// construction, so this only fires when offsets were skewed by something
// external (clock jumps, a wedged hold).
func (o *Orchestrator) warnNarrationOverlap(results []StepResult) {
	for i := 0; i < len(results)-1; i++ {
		narrationEnd := results[i].VideoOffset + 1.0 + results[i].AudioDuration
		if narrationEnd > results[i+1].VideoOffset+1.0 {
			o.Log.Warn("narration overlaps next step's track",
				"phase", "C", "step", results[i].StepID,
				"narration_end_s", fmt.Sprintf("%.2f", narrationEnd),
				"next_start_s", fmt.Sprintf("%.2f", results[i+1].VideoOffset+1.0))
		}
	}
}

func copyFile(src, dst string) error {
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

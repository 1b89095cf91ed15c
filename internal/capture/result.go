package capture

import (
	"fmt"
	"time"

	"github.com/ivlev/tour2video/internal/tourspec"
)

// Post-roll added to each step's hold so the muxed narration (delayed by
// one second at assembly time) fully plays out under the footage.
const (
	postRollIndependent = 1400 * time.Millisecond
	postRollContinuous  = 1000 * time.Millisecond
)

// StepResult is the capture outcome for one step. Created here, consumed
// (and its clip file deleted) by the assembly engine.
type StepResult struct {
	StepID       string
	AttemptCount int
	Success      bool
	// ClipPath is empty in dry-run mode and, in continuous mode, set only
	// on the first result (the whole run shares one clip).
	ClipPath      string
	AudioPath     string
	AudioDuration float64
	StepElapsed   time.Duration

	// Continuous mode only: seconds from recording start when the step
	// began, and when its hold ended.
	VideoOffset   float64
	StepEndOffset float64
}

// HoldDuration is how long the page is held after a step's actions so the
// narration fits under the footage.
func HoldDuration(mode tourspec.Mode, audioDuration float64) time.Duration {
	hold := time.Duration(audioDuration * float64(time.Second))
	if mode == tourspec.ModeContinuous {
		return hold + postRollContinuous
	}
	return hold + postRollIndependent
}

// StepError is a capture failure that exhausted its retry budget. It is
// terminal for the whole run in independent mode.
type StepError struct {
	StepID   string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

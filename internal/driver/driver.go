// Package driver defines the browser-automation capability the capture
// orchestrator drives, plus the Playwright-backed implementation used in
// production. The orchestrator only ever sees the interfaces.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/ivlev/tour2video/internal/tourspec"
)

// RecordOptions configure one recording context.
type RecordOptions struct {
	Viewport tourspec.Viewport
	// ClipDir is where the driver spools its raw capture artifact.
	ClipDir string
	// Timeout applies to navigation, assertions and individual actions.
	Timeout time.Duration
}

// Browser owns the browser process. The orchestrator holds exactly one for
// the duration of a capture phase.
type Browser interface {
	// NewRecording opens a fresh recording context with its own page.
	NewRecording(ctx context.Context, opts RecordOptions) (Recording, error)
	// Restart tears the browser process down and relaunches it. Used
	// between independent-mode retries to shed wedged state.
	Restart(ctx context.Context) error
	Close() error
}

// Recording is one recording context: a page plus the video stream being
// captured behind it. It must be closed on every exit path; closing without
// finalizing discards the footage.
type Recording interface {
	Page() Page
	// FinalizeTo stops the recording and saves the clip to dest.
	FinalizeTo(ctx context.Context, dest string) error
	// RawArtifact returns the path of the driver's own spool file, for
	// direct copy when FinalizeTo fails transiently.
	RawArtifact() (string, error)
	Close() error
}

// Page is the scriptable surface of one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// URL reports the page's current location, or "" before first navigation.
	URL() string
	RunAssertions(ctx context.Context, assertions []tourspec.Assertion) error
	RunActions(ctx context.Context, actions []tourspec.Action) error
	Scroll(ctx context.Context, scroll *tourspec.Scroll) error
	// Hold keeps the page (and recording) as-is for the given duration.
	Hold(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context, path string) error
}

// Error wraps any failure surfaced by a driver implementation. The capture
// orchestrator treats every driver error as retry-eligible in independent
// mode; there is no finer recoverability taxonomy.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("page driver: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Layout is the persisted working-directory tree for one tour run. Clip and
// audio filenames are derived from step ids so a later run pointed at the
// same directory can reuse them.
type Layout struct {
	Base        string
	Audio       string
	Clips       string
	Assembly    string
	Screenshots string

	lock *flock.Flock
}

// Create builds the work-directory tree and takes an advisory lock on it.
// An empty base gets a timestamped directory under the system temp dir.
// Reusing a directory that another run holds is an error: the subdirectories
// have a single writer.
func Create(base string) (*Layout, error) {
	if base == "" {
		stamp := time.Now().Format("20060102-150405")
		base = filepath.Join(os.TempDir(), "tour-recording-"+stamp)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	l := &Layout{
		Base:        abs,
		Audio:       filepath.Join(abs, "audio"),
		Clips:       filepath.Join(abs, "clips"),
		Assembly:    filepath.Join(abs, "assembly"),
		Screenshots: filepath.Join(abs, "screenshots"),
	}
	for _, dir := range []string{l.Base, l.Audio, l.Clips, l.Assembly, l.Screenshots} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir %s: %w", dir, err)
		}
	}

	l.lock = flock.New(filepath.Join(abs, ".tour2video.lock"))
	locked, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock work dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("work dir %s is in use by another run", abs)
	}
	return l, nil
}

// Release drops the advisory lock. The tree itself is kept for reuse.
func (l *Layout) Release() {
	if l.lock != nil {
		_ = l.lock.Unlock()
	}
}

// ClipPath is the deterministic per-step recording destination.
func (l *Layout) ClipPath(stepID string) string {
	return filepath.Join(l.Clips, fmt.Sprintf("step-%s.webm", stepID))
}

// ContinuousClipPath is the single-recording destination in continuous mode.
func (l *Layout) ContinuousClipPath() string {
	return filepath.Join(l.Clips, "continuous.webm")
}

// AudioPath is the deterministic per-step narration destination, shared with
// --skip-tts reuse.
func (l *Layout) AudioPath(stepID string) string {
	return filepath.Join(l.Audio, fmt.Sprintf("step-%s.wav", stepID))
}

// ScreenshotPath names a failure screenshot for a step attempt. Attempt 0 is
// used by continuous mode, which has no retries.
func (l *Layout) ScreenshotPath(stepID string, attempt int) string {
	if attempt == 0 {
		return filepath.Join(l.Screenshots, fmt.Sprintf("step-%s-continuous.png", stepID))
	}
	return filepath.Join(l.Screenshots, fmt.Sprintf("step-%s-attempt-%d.png", stepID, attempt))
}

package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateBuildsTree(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	l, err := Create(base)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer l.Release()

	for _, dir := range []string{l.Audio, l.Clips, l.Assembly, l.Screenshots} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", dir, err)
		}
	}
}

func TestDeterministicNames(t *testing.T) {
	l, err := Create(filepath.Join(t.TempDir(), "run"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer l.Release()

	if got := filepath.Base(l.ClipPath("intro")); got != "step-intro.webm" {
		t.Errorf("clip name: %s", got)
	}
	if got := filepath.Base(l.AudioPath("intro")); got != "step-intro.wav" {
		t.Errorf("audio name: %s", got)
	}
	if got := filepath.Base(l.ScreenshotPath("intro", 2)); got != "step-intro-attempt-2.png" {
		t.Errorf("screenshot name: %s", got)
	}
	if got := filepath.Base(l.ScreenshotPath("intro", 0)); got != "step-intro-continuous.png" {
		t.Errorf("continuous screenshot name: %s", got)
	}
}

func TestSecondRunIsRejectedWhileLocked(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	first, err := Create(base)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer first.Release()

	if _, err := Create(base); err == nil || !strings.Contains(err.Error(), "in use") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

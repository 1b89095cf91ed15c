package tourspec

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSpec = `
meta:
  title: "Java Arrays Tour"
  target_duration_seconds: 60
  max_duration_seconds: 75
settings:
  viewport: {width: 1920, height: 1080}
  voice: am_michael
  speech_speed: 1.0
  language: en-us
  default_step_timeout: 30
  max_retries_per_step: 2
  browser: chromium
steps:
  - id: intro
    url: http://127.0.0.1:8080/
    narration: "Welcome to the tour."
    actions:
      - {type: wait_for_load}
      - {type: dismiss_popups}
  - id: run-code
    url: http://127.0.0.1:8080/
    narration: "Now we run the program."
    actions:
      - {type: terminal_type, text: "javac Main.java", press_enter: true}
output:
  path: /tmp/tour.mp4
  video_codec: libx264
  video_preset: medium
  video_crf: 20
  audio_codec: aac
  audio_bitrate: 192k
`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tour.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestLoadValidSpec(t *testing.T) {
	tour, err := Load(writeSpec(t, validSpec))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if tour.Settings.Mode != ModeIndependent {
		t.Errorf("expected default mode independent, got %q", tour.Settings.Mode)
	}
	if !tour.Output.LoudnormEnabled() {
		t.Error("loudnorm should default to enabled")
	}

	wantBudget := 60.0 / 2
	for _, step := range tour.Steps {
		if math.Abs(step.TimeBudgetSeconds-wantBudget) > 1e-9 {
			t.Errorf("step %s: budget %.2f, want %.2f", step.ID, step.TimeBudgetSeconds, wantBudget)
		}
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	spec := strings.Replace(validSpec, "id: run-code", "id: intro", 1)
	_, err := Load(writeSpec(t, spec))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if !strings.Contains(err.Error(), "intro") {
		t.Errorf("error should name the duplicate id: %v", err)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	spec := strings.Replace(validSpec, "browser: chromium", "browser: chromium\n  mode: parallel", 1)
	_, err := Load(writeSpec(t, spec))
	if err == nil {
		t.Fatal("expected mode error")
	}
	if !strings.Contains(err.Error(), "settings.mode") {
		t.Errorf("error should name settings.mode: %v", err)
	}
}

func TestLoadRejectsUnknownActionType(t *testing.T) {
	spec := strings.Replace(validSpec, "type: dismiss_popups", "type: teleport", 1)
	_, err := Load(writeSpec(t, spec))
	if err == nil {
		t.Fatal("expected action type error")
	}
	if !strings.Contains(err.Error(), "teleport") {
		t.Errorf("error should name the unknown action: %v", err)
	}
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "missing title",
			mutate:  func(s string) string { return strings.Replace(s, `title: "Java Arrays Tour"`, "", 1) },
			wantErr: "meta.title",
		},
		{
			name:    "max below target",
			mutate:  func(s string) string { return strings.Replace(s, "max_duration_seconds: 75", "max_duration_seconds: 30", 1) },
			wantErr: "max_duration_seconds",
		},
		{
			name:    "empty narration",
			mutate:  func(s string) string { return strings.Replace(s, `narration: "Welcome to the tour."`, `narration: "  "`, 1) },
			wantErr: "narration",
		},
		{
			name:    "missing output path",
			mutate:  func(s string) string { return strings.Replace(s, "path: /tmp/tour.mp4", "", 1) },
			wantErr: "output.path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSpec(t, tc.mutate(validSpec)))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadZoomOverride(t *testing.T) {
	spec := strings.Replace(validSpec,
		"    actions:\n      - {type: terminal_type, text: \"javac Main.java\", press_enter: true}",
		"    zoom: {focus: terminal, z: 2.0, transition_ms: 400}", 1)
	tour, err := Load(writeSpec(t, spec))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	step := tour.StepByID("run-code")
	if step == nil || step.Zoom == nil {
		t.Fatal("expected zoom override on run-code")
	}
	if step.Zoom.Focus != "terminal" || *step.Zoom.Z != 2.0 {
		t.Errorf("unexpected zoom override: %+v", step.Zoom)
	}
}

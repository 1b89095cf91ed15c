package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/tour2video/internal/tourspec"
)

func testTour(stepIDs ...string) *tourspec.Tour {
	tour := &tourspec.Tour{
		Meta: tourspec.Meta{Title: "t", TargetDuration: 10, MaxDuration: 12},
		Settings: tourspec.Settings{
			Voice: "am_michael", SpeechSpeed: 1.0, Language: "en-us",
		},
	}
	for _, id := range stepIDs {
		tour.Steps = append(tour.Steps, tourspec.Step{
			ID: id, URL: "http://localhost/", Narration: "narration for " + id,
		})
	}
	return tour
}

func writeWav(t *testing.T, dir, stepID string) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("step-%s.wav", stepID))
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func cannedProbe(durations map[string]float64) func(context.Context, string) (float64, error) {
	return func(_ context.Context, path string) (float64, error) {
		base := filepath.Base(path)
		d, ok := durations[base]
		if !ok {
			return 0, fmt.Errorf("no such file: %s", path)
		}
		return d, nil
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestValidateAcceptsBudget(t *testing.T) {
	tour := testTour("a", "b")
	dir := t.TempDir()
	mapping := map[string]Info{
		"a": {Path: writeWav(t, dir, "a"), Duration: 3.0},
		"b": {Path: writeWav(t, dir, "b"), Duration: 4.0},
	}
	if err := Validate(tour, mapping); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejectsOverlongNarration(t *testing.T) {
	tour := testTour("a", "b")
	dir := t.TempDir()
	mapping := map[string]Info{
		"a": {Path: writeWav(t, dir, "a"), Duration: 6.0},
		"b": {Path: writeWav(t, dir, "b"), Duration: 5.0},
	}
	err := Validate(tour, mapping)
	if err == nil {
		t.Fatal("expected budget error")
	}
	if !strings.Contains(err.Error(), "exceeds target_duration_seconds") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingStep(t *testing.T) {
	tour := testTour("a", "b")
	dir := t.TempDir()
	mapping := map[string]Info{
		"a": {Path: writeWav(t, dir, "a"), Duration: 3.0},
	}
	err := Validate(tour, mapping)
	if err == nil || !strings.Contains(err.Error(), "step b") {
		t.Fatalf("expected missing-entry error for step b, got %v", err)
	}
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	tour := testTour("a")
	dir := t.TempDir()
	path := filepath.Join(dir, "step-a.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := Validate(tour, map[string]Info{"a": {Path: path, Duration: 2.0}})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty-file error, got %v", err)
	}
}

func TestCacheReaderReusesClips(t *testing.T) {
	tour := testTour("a", "b")
	dir := t.TempDir()
	writeWav(t, dir, "a")
	writeWav(t, dir, "b")

	reader := &CacheReader{
		Probe: cannedProbe(map[string]float64{"step-a.wav": 3.0, "step-b.wav": 4.0}),
		Log:   discard(),
	}
	mapping, err := reader.Synthesize(context.Background(), tour, dir)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if mapping["a"].Duration != 3.0 || mapping["b"].Duration != 4.0 {
		t.Errorf("unexpected durations: %+v", mapping)
	}
}

func TestCacheReaderFailsOnMissingClip(t *testing.T) {
	tour := testTour("a")
	reader := &CacheReader{Probe: cannedProbe(nil), Log: discard()}
	_, err := reader.Synthesize(context.Background(), tour, t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing cached clip")
	}
	var syncErr *SyncError
	if !asSyncError(err, &syncErr) || syncErr.StepID != "a" {
		t.Errorf("expected SyncError for step a, got %v", err)
	}
}

func asSyncError(err error, target **SyncError) bool {
	se, ok := err.(*SyncError)
	if ok {
		*target = se
	}
	return ok
}

func TestDriveDispatcherRoundTrip(t *testing.T) {
	tour := testTour("a")
	drive := t.TempDir()
	audioDir := t.TempDir()

	d := &DriveDispatcher{
		DriveDir:     filepath.Join(drive, "tts-jobs"),
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		Probe:        cannedProbe(map[string]float64{"step-a.wav": 2.5}),
		Log:          discard(),
	}

	// Fake worker: wait for request.json, render a WAV, write done.marker.
	go func() {
		for {
			jobs, _ := filepath.Glob(filepath.Join(d.DriveDir, "*", "request.json"))
			if len(jobs) == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			jobDir := filepath.Dir(jobs[0])

			var req driveRequest
			data, _ := os.ReadFile(jobs[0])
			if err := json.Unmarshal(data, &req); err != nil || len(req.Steps) != 1 {
				return
			}
			os.MkdirAll(filepath.Join(jobDir, "audio"), 0o755)
			os.WriteFile(filepath.Join(jobDir, "audio", "step-a.wav"), []byte("RIFFfake"), 0o644)
			os.WriteFile(filepath.Join(jobDir, "done.marker"), []byte("ok"), 0o644)
			return
		}
	}()

	mapping, err := d.Synthesize(context.Background(), tour, audioDir)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if mapping["a"].Duration != 2.5 {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
	if _, err := os.Stat(filepath.Join(audioDir, "step-a.wav")); err != nil {
		t.Errorf("expected local copy of WAV: %v", err)
	}
}

func TestDriveDispatcherTimesOut(t *testing.T) {
	tour := testTour("a")
	d := &DriveDispatcher{
		DriveDir:     filepath.Join(t.TempDir(), "tts-jobs"),
		Timeout:      30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		Probe:        cannedProbe(nil),
		Log:          discard(),
	}
	_, err := d.Synthesize(context.Background(), tour, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestDriveDispatcherSurfacesWorkerError(t *testing.T) {
	tour := testTour("a")
	driveDir := filepath.Join(t.TempDir(), "tts-jobs")
	d := &DriveDispatcher{
		DriveDir:     driveDir,
		Timeout:      2 * time.Second,
		PollInterval: 5 * time.Millisecond,
		Probe:        cannedProbe(nil),
		Log:          discard(),
	}

	go func() {
		for {
			jobs, _ := filepath.Glob(filepath.Join(driveDir, "*", "request.json"))
			if len(jobs) == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			os.WriteFile(filepath.Join(filepath.Dir(jobs[0]), "error.marker"), []byte("CUDA OOM"), 0o644)
			return
		}
	}()

	_, err := d.Synthesize(context.Background(), tour, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "CUDA OOM") {
		t.Fatalf("expected worker error, got %v", err)
	}
}

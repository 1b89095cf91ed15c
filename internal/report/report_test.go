package report

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/tourspec"
)

func reportTour(target, max float64) *tourspec.Tour {
	return &tourspec.Tour{
		Meta: tourspec.Meta{Title: "t", TargetDuration: target, MaxDuration: max},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tour.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTotalRetries(t *testing.T) {
	results := []capture.StepResult{
		{AttemptCount: 1},
		{AttemptCount: 3},
		{AttemptCount: 0}, // dry run
	}
	if got := TotalRetries(results); got != 2 {
		t.Errorf("expected 2 retries, got %d", got)
	}
}

func TestStepTableMarksFailures(t *testing.T) {
	results := []capture.StepResult{
		{StepID: "intro", Success: true, AttemptCount: 1, AudioDuration: 3.5, StepElapsed: 6 * time.Second},
		{StepID: "run-code", Success: false, AttemptCount: 3, AudioDuration: 4.0},
	}
	rendered := stepTable(results, false)
	if !strings.Contains(rendered, "intro") || !strings.Contains(rendered, "run-code") {
		t.Errorf("missing step rows:\n%s", rendered)
	}
	if !strings.Contains(rendered, "FAILED") || !strings.Contains(rendered, "OK") {
		t.Errorf("missing status column:\n%s", rendered)
	}
	if strings.Contains(rendered, "Offset") {
		t.Errorf("independent table must not show offsets:\n%s", rendered)
	}
}

func TestStepTableShowsContinuousOffsets(t *testing.T) {
	results := []capture.StepResult{
		{StepID: "intro", Success: true, AttemptCount: 1, VideoOffset: 0},
		{StepID: "run-code", Success: true, AttemptCount: 1, VideoOffset: 5.25},
	}
	rendered := stepTable(results, true)
	if !strings.Contains(rendered, "Offset") || !strings.Contains(rendered, "5.25") {
		t.Errorf("missing offset column:\n%s", rendered)
	}
}

func TestPrintRejectsOverlongOutput(t *testing.T) {
	r := &Reporter{
		Log: quietLogger(),
		Out: os.Stderr,
		Probe: func(context.Context, string) (float64, error) {
			return 80.0, nil
		},
	}
	err := r.Print(context.Background(), reportTour(60, 75), nil, writeVideo(t), time.Now())
	var de *DurationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DurationError, got %v", err)
	}
	if de.Duration != 80.0 || de.Max != 75.0 {
		t.Errorf("unexpected error detail: %+v", de)
	}
}

func TestPrintToleratesTargetOverrun(t *testing.T) {
	r := &Reporter{
		Log: quietLogger(),
		Out: os.Stderr,
		Probe: func(context.Context, string) (float64, error) {
			return 70.0, nil
		},
	}
	// Between target and max: warn, not fail.
	if err := r.Print(context.Background(), reportTour(60, 75), nil, writeVideo(t), time.Now()); err != nil {
		t.Fatalf("expected warning only, got %v", err)
	}
}

func TestPrintWithoutOutput(t *testing.T) {
	r := &Reporter{Log: quietLogger(), Out: os.Stderr}
	// Dry runs have no final path; the report still renders.
	if err := r.Print(context.Background(), reportTour(60, 75), nil, "", time.Now()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// DriveDispatcher offloads synthesis to a remote GPU worker through a
// shared, synced directory. Protocol:
//
//	1. write <drive>/<job-id>/request.json
//	2. the worker picks the job up, renders WAVs into <job-id>/audio/
//	3. the worker writes <job-id>/done.marker
//	4. we copy the WAVs back into the local audio directory
//
// The worker may also write error.marker with a message, which fails the
// job immediately instead of waiting out the timeout.
type DriveDispatcher struct {
	DriveDir     string
	Timeout      time.Duration
	PollInterval time.Duration
	Probe        media.DurationProber
	Log          *slog.Logger
}

type driveRequest struct {
	Voice string             `json:"voice"`
	Speed float64            `json:"speed"`
	Lang  string             `json:"language"`
	Steps []driveRequestStep `json:"steps"`
}

type driveRequestStep struct {
	ID        string `json:"id"`
	Narration string `json:"narration"`
}

func (d *DriveDispatcher) Synthesize(ctx context.Context, tour *tourspec.Tour, audioDir string) (map[string]Info, error) {
	if d.DriveDir == "" {
		return nil, &SyncError{Reason: "remote TTS drive directory not configured"}
	}
	if _, err := os.Stat(filepath.Dir(d.DriveDir)); err != nil {
		return nil, &SyncError{Reason: fmt.Sprintf("drive sync directory not mounted: %v", err)}
	}

	jobID := time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	jobDir := filepath.Join(d.DriveDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, &SyncError{Reason: fmt.Sprintf("create job dir: %v", err)}
	}

	req := driveRequest{
		Voice: tour.Settings.Voice,
		Speed: tour.Settings.SpeechSpeed,
		Lang:  tour.Settings.Language,
	}
	for _, step := range tour.Steps {
		req.Steps = append(req.Steps, driveRequestStep{ID: step.ID, Narration: step.Narration})
	}
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, &SyncError{Reason: fmt.Sprintf("encode request: %v", err)}
	}
	if err := os.WriteFile(filepath.Join(jobDir, "request.json"), payload, 0o644); err != nil {
		return nil, &SyncError{Reason: fmt.Sprintf("write request: %v", err)}
	}

	d.Log.Info("dispatched TTS job to remote worker", "phase", "B", "job", jobID)
	if err := d.awaitMarker(ctx, jobDir); err != nil {
		return nil, err
	}

	mapping := make(map[string]Info, len(tour.Steps))
	for _, step := range tour.Steps {
		remote := filepath.Join(jobDir, "audio", fmt.Sprintf("step-%s.wav", step.ID))
		local := filepath.Join(audioDir, fmt.Sprintf("step-%s.wav", step.ID))
		if err := copyFile(remote, local); err != nil {
			return nil, &SyncError{StepID: step.ID,
				Reason: fmt.Sprintf("remote worker produced no audio: %v", err)}
		}
		duration, err := d.Probe(ctx, local)
		if err != nil {
			return nil, &SyncError{StepID: step.ID,
				Reason: fmt.Sprintf("remote audio unreadable: %v", err)}
		}
		mapping[step.ID] = Info{Path: local, Duration: duration}
	}
	return mapping, nil
}

func (d *DriveDispatcher) awaitMarker(ctx context.Context, jobDir string) error {
	poll := d.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	deadline := time.Now().Add(d.Timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(filepath.Join(jobDir, "error.marker")); err == nil {
			return &SyncError{Reason: fmt.Sprintf("remote worker reported failure: %s", string(data))}
		}
		if _, err := os.Stat(filepath.Join(jobDir, "done.marker")); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return &SyncError{Reason: fmt.Sprintf("remote worker timed out after %s", d.Timeout)}
		}
		select {
		case <-ctx.Done():
			return &SyncError{Reason: fmt.Sprintf("cancelled while waiting for remote worker: %v", ctx.Err())}
		case <-ticker.C:
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

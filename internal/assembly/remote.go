package assembly

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
)

// EncodeDispatcher offloads the final encode to a remote NVENC worker
// through a shared, synced directory. Same marker protocol as the remote
// TTS path: write <drive>/<job-id>/request.json with the input file next
// to it, wait for done.marker (or error.marker), copy the outputs back
// from <job-id>/output/.
type EncodeDispatcher struct {
	DriveDir     string
	Timeout      time.Duration
	PollInterval time.Duration
	Log          *slog.Logger
}

type encodeRequest struct {
	Operations []encodeOperation `json:"operations"`
}

type encodeOperation struct {
	Type   string `json:"type"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Reencode transcodes the assembled video on the remote worker and swaps
// the result in place. Callers treat an error as "keep the local encode",
// not as a pipeline failure.
func (d *EncodeDispatcher) Reencode(ctx context.Context, videoPath string) error {
	if d.DriveDir == "" {
		return fmt.Errorf("remote encode drive directory not configured")
	}
	if _, err := os.Stat(filepath.Dir(d.DriveDir)); err != nil {
		return fmt.Errorf("drive sync directory not mounted: %w", err)
	}

	jobID := time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	jobDir := filepath.Join(d.DriveDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	inputName := filepath.Base(videoPath)
	outputName := nvencOutputName(inputName)
	if err := copyFile(videoPath, filepath.Join(jobDir, inputName)); err != nil {
		return fmt.Errorf("stage input for remote encode: %w", err)
	}

	req := encodeRequest{Operations: []encodeOperation{
		{Type: "transcode", Input: inputName, Output: outputName},
	}}
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "request.json"), payload, 0o644); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	d.Log.Info("dispatched encode job to remote worker", "phase", "D", "job", jobID)
	if err := d.awaitMarker(ctx, jobDir); err != nil {
		return err
	}

	remote := filepath.Join(jobDir, "output", outputName)
	if _, err := os.Stat(remote); err != nil {
		return fmt.Errorf("remote worker produced no output: %w", err)
	}
	if err := copyFile(remote, videoPath); err != nil {
		return fmt.Errorf("copy remote encode back: %w", err)
	}
	d.Log.Info("remote encode complete", "phase", "D", "job", jobID)
	return nil
}

func nvencOutputName(inputName string) string {
	ext := filepath.Ext(inputName)
	return inputName[:len(inputName)-len(ext)] + "-nvenc" + ext
}

func (d *EncodeDispatcher) awaitMarker(ctx context.Context, jobDir string) error {
	poll := d.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	deadline := time.Now().Add(d.Timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(filepath.Join(jobDir, "error.marker")); err == nil {
			return fmt.Errorf("remote worker reported failure: %s", string(data))
		}
		if _, err := os.Stat(filepath.Join(jobDir, "done.marker")); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("remote worker timed out after %s", d.Timeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled while waiting for remote worker: %w", ctx.Err())
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

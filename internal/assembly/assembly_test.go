package assembly

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/tour2video/internal/capture"
)

func TestPadSeconds(t *testing.T) {
	if got := padSeconds(5.0, 3.0); got != 0 {
		t.Errorf("long clip needs no padding, got %.3f", got)
	}
	// 3s narration + 1s lead-in against 3s of footage leaves 1s to clone.
	if got := padSeconds(3.0, 3.0); got != 1.0 {
		t.Errorf("expected 1.0s of padding, got %.3f", got)
	}
}

func TestMuxFilterWithoutPad(t *testing.T) {
	f := muxFilter(0)
	if strings.Contains(f, "tpad") {
		t.Errorf("unexpected tail padding: %s", f)
	}
	if !strings.Contains(f, "[0:v]setpts=PTS-STARTPTS[v]") {
		t.Errorf("missing video passthrough: %s", f)
	}
	if !strings.Contains(f, "[1:a]adelay=1000|1000,asetpts=PTS-STARTPTS[a]") {
		t.Errorf("missing narration lead-in: %s", f)
	}
}

func TestMuxFilterWithPad(t *testing.T) {
	f := muxFilter(1.5)
	if !strings.Contains(f, "tpad=stop_mode=clone:stop_duration=1.500[v0]") {
		t.Errorf("missing cloned tail: %s", f)
	}
	if !strings.Contains(f, "[v0]setpts=PTS-STARTPTS[v]") {
		t.Errorf("padded stream must feed the output: %s", f)
	}
}

func TestNarrationDelayMS(t *testing.T) {
	if got := narrationDelayMS(0); got != 1000 {
		t.Errorf("expected 1000ms for offset 0, got %d", got)
	}
	if got := narrationDelayMS(12.345); got != 13345 {
		t.Errorf("expected 13345ms, got %d", got)
	}
}

func TestContinuousMixFilter(t *testing.T) {
	results := []capture.StepResult{
		{StepID: "a", VideoOffset: 0},
		{StepID: "b", VideoOffset: 5.5},
	}
	f := continuousMixFilter(results, true)
	for _, want := range []string{
		"[1:a]adelay=1000|1000[a1]",
		"[2:a]adelay=6500|6500[a2]",
		"[a1][a2]amix=inputs=2:duration=longest[amixed]",
		"[amixed]loudnorm=I=-16:TP=-1.5:LRA=11[aout]",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("filter missing %q: %s", want, f)
		}
	}

	f = continuousMixFilter(results, false)
	if strings.Contains(f, "loudnorm") || !strings.Contains(f, "[amixed]anull[aout]") {
		t.Errorf("loudnorm must be skippable: %s", f)
	}
}

func TestRenderConcatList(t *testing.T) {
	got := renderConcatList([]string{"/tmp/a.mp4", "/tmp/b.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/b.mp4'\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveOutputPath(t *testing.T) {
	if _, err := resolveOutputPath(""); err == nil {
		t.Error("empty path must fail")
	}
	got, err := resolveOutputPath("out/tour.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %s", got)
	}
}

func TestNvencOutputName(t *testing.T) {
	if got := nvencOutputName("tour.mp4"); got != "tour-nvenc.mp4" {
		t.Errorf("got %s", got)
	}
}

func encodeTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEncodeDispatcherRoundTrip(t *testing.T) {
	drive := t.TempDir()
	video := filepath.Join(t.TempDir(), "tour.mp4")
	if err := os.WriteFile(video, []byte("local-encode"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Fake worker: wait for the request, transcode, mark done.
	go func() {
		for i := 0; i < 200; i++ {
			jobs, _ := os.ReadDir(drive)
			for _, job := range jobs {
				jobDir := filepath.Join(drive, job.Name())
				data, err := os.ReadFile(filepath.Join(jobDir, "request.json"))
				if err != nil {
					continue
				}
				var req encodeRequest
				if json.Unmarshal(data, &req) != nil || len(req.Operations) != 1 {
					continue
				}
				op := req.Operations[0]
				if op.Type != "transcode" || op.Input != "tour.mp4" {
					os.WriteFile(filepath.Join(jobDir, "error.marker"), []byte("bad request"), 0o644)
					return
				}
				os.MkdirAll(filepath.Join(jobDir, "output"), 0o755)
				os.WriteFile(filepath.Join(jobDir, "output", op.Output), []byte("nvenc-encode"), 0o644)
				os.WriteFile(filepath.Join(jobDir, "done.marker"), nil, 0o644)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	d := &EncodeDispatcher{
		DriveDir:     drive,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		Log:          encodeTestLogger(),
	}
	if err := d.Reencode(context.Background(), video); err != nil {
		t.Fatalf("Reencode failed: %v", err)
	}
	data, err := os.ReadFile(video)
	if err != nil || string(data) != "nvenc-encode" {
		t.Errorf("expected remote encode swapped in, got %q, %v", data, err)
	}
}

func TestEncodeDispatcherSurfacesWorkerError(t *testing.T) {
	drive := t.TempDir()
	video := filepath.Join(t.TempDir(), "tour.mp4")
	if err := os.WriteFile(video, []byte("local-encode"), 0o644); err != nil {
		t.Fatal(err)
	}

	go func() {
		for i := 0; i < 200; i++ {
			jobs, _ := os.ReadDir(drive)
			for _, job := range jobs {
				jobDir := filepath.Join(drive, job.Name())
				if _, err := os.Stat(filepath.Join(jobDir, "request.json")); err == nil {
					os.WriteFile(filepath.Join(jobDir, "error.marker"), []byte("NVENC session limit"), 0o644)
					return
				}
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	d := &EncodeDispatcher{
		DriveDir:     drive,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		Log:          encodeTestLogger(),
	}
	err := d.Reencode(context.Background(), video)
	if err == nil || !strings.Contains(err.Error(), "NVENC session limit") {
		t.Fatalf("expected worker error surfaced, got %v", err)
	}
	// Local encode must survive a failed remote job.
	data, _ := os.ReadFile(video)
	if string(data) != "local-encode" {
		t.Errorf("local encode clobbered: %q", data)
	}
}

package engine

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/tour2video/internal/audio"
	"github.com/ivlev/tour2video/internal/tourspec"
)

func testPipeline(opts Options) *Pipeline {
	return &Pipeline{
		Log:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Out:     os.Stderr,
		Options: opts,
	}
}

func TestRunPreSetupStopsOnFailure(t *testing.T) {
	p := testPipeline(Options{})
	tour := &tourspec.Tour{PreSetup: []string{"true", "echo boom >&2; exit 3", "true"}}

	err := p.runPreSetup(context.Background(), tour)
	if err == nil {
		t.Fatal("expected pre-setup failure")
	}
	if !strings.Contains(err.Error(), "pre-setup") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunPreSetupEmptyIsNoop(t *testing.T) {
	p := testPipeline(Options{})
	if err := p.runPreSetup(context.Background(), &tourspec.Tour{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSynthesizerSelection(t *testing.T) {
	if _, ok := testPipeline(Options{SkipTTS: true}).synthesizer().(*audio.CacheReader); !ok {
		t.Error("skip-tts must reuse cached audio")
	}
	if _, ok := testPipeline(Options{TTSBackend: "drive"}).synthesizer().(*audio.DriveDispatcher); !ok {
		t.Error("drive backend must dispatch remotely")
	}
	if _, ok := testPipeline(Options{}).synthesizer().(*audio.CommandSynthesizer); !ok {
		t.Error("default backend must run the local command")
	}
}

func TestSynthesizerOverride(t *testing.T) {
	p := testPipeline(Options{SkipTTS: true})
	override := &audio.CommandSynthesizer{}
	p.Synth = override
	if p.synthesizer() != audio.Synthesizer(override) {
		t.Error("explicit synthesizer must win over options")
	}
}

func TestRemoteTimeoutDefaults(t *testing.T) {
	p := testPipeline(Options{})
	if got := p.remoteTimeout(defaultTTSTimeout); got != 10*time.Minute {
		t.Errorf("expected fallback, got %s", got)
	}
	p = testPipeline(Options{RemoteTimeout: time.Minute})
	if got := p.remoteTimeout(defaultTTSTimeout); got != time.Minute {
		t.Errorf("expected configured timeout, got %s", got)
	}
}

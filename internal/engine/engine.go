// Package engine sequences the pipeline phases: validate, synthesize
// narration, capture, assemble, virtual camera, overlays, report.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ivlev/tour2video/internal/assembly"
	"github.com/ivlev/tour2video/internal/audio"
	"github.com/ivlev/tour2video/internal/camera"
	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/driver"
	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/report"
	"github.com/ivlev/tour2video/internal/tourspec"
	"github.com/ivlev/tour2video/internal/workdir"
)

// Options are the CLI-facing knobs for one run.
type Options struct {
	DryRun  bool
	SkipTTS bool
	WorkDir string

	TTSBackend  string // "local" or "drive"
	TTSCommand  []string
	TTSDriveDir string

	EncodeBackend  string // "local" or "drive-nvenc"
	EncodeDriveDir string

	RemoteTimeout time.Duration

	Zoom string // "off", "auto" or "mobile"
}

const (
	defaultTTSTimeout    = 10 * time.Minute
	defaultEncodeTimeout = 20 * time.Minute
)

// Pipeline runs the phases strictly in order. Phases own their resources;
// the pipeline only wires them together and stops at the first error.
type Pipeline struct {
	Log     *slog.Logger
	Out     io.Writer
	Options Options

	// NewBrowser opens the page driver. Not called in dry-run mode.
	NewBrowser func(ctx context.Context, tour *tourspec.Tour) (driver.Browser, error)

	// Probe defaults to ffprobe; tests substitute canned durations.
	Probe media.DurationProber

	// Synth overrides the backend chosen from Options when non-nil.
	Synth audio.Synthesizer
}

func (p *Pipeline) probe() media.DurationProber {
	if p.Probe != nil {
		return p.Probe
	}
	return media.ProbeDuration
}

// Run executes the whole pipeline for one tour spec.
func (p *Pipeline) Run(ctx context.Context, specPath string) error {
	started := time.Now()

	tour, err := tourspec.Load(specPath)
	if err != nil {
		return err
	}
	p.Log.Info("spec validated", "phase", "A",
		"title", tour.Meta.Title, "steps", len(tour.Steps), "mode", tour.Settings.Mode)
	for _, step := range tour.Steps {
		p.Log.Info("step budget", "phase", "A",
			"step", step.ID, "budget_s", fmt.Sprintf("%.2f", step.TimeBudgetSeconds))
	}

	dirs, err := workdir.Create(p.Options.WorkDir)
	if err != nil {
		return err
	}
	defer dirs.Release()
	p.Log.Info("work directory ready", "phase", "A", "dir", dirs.Base)

	if err := media.Preflight(p.Log, dirs.Base); err != nil {
		return err
	}
	if err := p.runPreSetup(ctx, tour); err != nil {
		return err
	}

	mapping, err := p.synthesizer().Synthesize(ctx, tour, dirs.Audio)
	if err != nil {
		return err
	}
	if err := audio.Validate(tour, mapping); err != nil {
		return err
	}

	var browser driver.Browser
	if !p.Options.DryRun {
		browser, err = p.NewBrowser(ctx, tour)
		if err != nil {
			return fmt.Errorf("open browser: %w", err)
		}
	}
	orch := &capture.Orchestrator{Tour: tour, Browser: browser, Dirs: dirs, Log: p.Log}
	results, err := orch.Run(ctx, mapping, p.Options.DryRun)
	if err != nil {
		return err
	}

	reporter := &report.Reporter{Log: p.Log, Out: p.Out, Probe: p.probe()}
	if p.Options.DryRun {
		return reporter.Print(ctx, tour, results, "", started)
	}

	eng := &assembly.Engine{Tour: tour, Dirs: dirs, Log: p.Log, Probe: p.probe()}
	finalPath, err := eng.Assemble(ctx, results)
	if err != nil {
		return err
	}

	if err := p.applyCamera(ctx, tour, results, finalPath, dirs); err != nil {
		return err
	}
	p.maybeRemoteEncode(ctx, finalPath)
	if err := eng.ApplyOverlays(ctx, finalPath); err != nil {
		return err
	}

	return reporter.Print(ctx, tour, results, finalPath, started)
}

// runPreSetup executes the tour's shell commands before anything touches
// the browser, so the environment under capture is in a known state.
func (p *Pipeline) runPreSetup(ctx context.Context, tour *tourspec.Tour) error {
	if len(tour.PreSetup) == 0 {
		return nil
	}
	p.Log.Info("running pre-setup commands", "phase", "A", "count", len(tour.PreSetup))
	for i, command := range tour.PreSetup {
		p.Log.Info("pre-setup", "phase", "A", "index", i+1, "command", command)
		if err := media.Run(ctx, fmt.Sprintf("pre-setup command %d", i+1), "sh", "-c", command); err != nil {
			return fmt.Errorf("pre-setup: %w", err)
		}
	}
	return nil
}

// synthesizer picks the narration backend for this run.
func (p *Pipeline) synthesizer() audio.Synthesizer {
	if p.Synth != nil {
		return p.Synth
	}
	switch {
	case p.Options.SkipTTS:
		return &audio.CacheReader{Probe: p.probe(), Log: p.Log}
	case p.Options.TTSBackend == "drive":
		return &audio.DriveDispatcher{
			DriveDir: p.Options.TTSDriveDir,
			Timeout:  p.remoteTimeout(defaultTTSTimeout),
			Probe:    p.probe(),
			Log:      p.Log,
		}
	default:
		return &audio.CommandSynthesizer{
			Template: p.Options.TTSCommand,
			Probe:    p.probe(),
			Log:      p.Log,
		}
	}
}

func (p *Pipeline) remoteTimeout(fallback time.Duration) time.Duration {
	if p.Options.RemoteTimeout > 0 {
		return p.Options.RemoteTimeout
	}
	return fallback
}

// applyCamera post-processes the assembled video with the virtual camera
// when a zoom mode is selected.
func (p *Pipeline) applyCamera(ctx context.Context, tour *tourspec.Tour, results []capture.StepResult, finalPath string, dirs *workdir.Layout) error {
	if p.Options.Zoom == "" || p.Options.Zoom == "off" {
		return nil
	}

	total, err := p.probe()(ctx, finalPath)
	if err != nil {
		return fmt.Errorf("probe assembled video: %w", err)
	}
	keyframes := camera.BuildPath(tour, results, total)
	if p.Options.Zoom == "mobile" {
		camera.BoostForMobile(keyframes)
	}
	p.Log.Info("camera path generated", "phase", "E",
		"zoom", p.Options.Zoom, "keyframes", len(keyframes),
		"duration_s", fmt.Sprintf("%.1f", total))

	timeline := filepath.Join(dirs.Assembly, "camera-timeline.yaml")
	if err := camera.WriteTimeline(keyframes, timeline); err != nil {
		p.Log.Warn("camera timeline not written", "phase", "E", "error", err)
	}

	return camera.Apply(ctx, p.Log, finalPath, keyframes, dirs.Assembly)
}

// maybeRemoteEncode re-encodes on the remote NVENC worker; any failure
// keeps the local encode and the pipeline moves on.
func (p *Pipeline) maybeRemoteEncode(ctx context.Context, finalPath string) {
	if p.Options.EncodeBackend != "drive-nvenc" {
		return
	}
	d := &assembly.EncodeDispatcher{
		DriveDir: p.Options.EncodeDriveDir,
		Timeout:  p.remoteTimeout(defaultEncodeTimeout),
		Log:      p.Log,
	}
	if err := d.Reencode(ctx, finalPath); err != nil {
		p.Log.Warn("remote encode failed, keeping local encode", "phase", "D", "error", err)
	}
}

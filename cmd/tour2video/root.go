package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ivlev/tour2video/internal/driver"
	"github.com/ivlev/tour2video/internal/engine"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// Environment fallbacks for the shared-drive backends, loaded from .env
// when present. Flags win over the environment.
const (
	envTTSDriveDir    = "TOUR2VIDEO_TTS_DRIVE_DIR"
	envEncodeDriveDir = "TOUR2VIDEO_ENCODE_DRIVE_DIR"
)

func newRootCommand() *cobra.Command {
	opts := engine.Options{}
	var remoteTimeout time.Duration
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "tour2video <tour.yaml>",
		Short:         "Record a narrated product-tour video from a YAML script",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			godotenv.Load()
			if opts.TTSDriveDir == "" {
				opts.TTSDriveDir = os.Getenv(envTTSDriveDir)
			}
			if opts.EncodeDriveDir == "" {
				opts.EncodeDriveDir = os.Getenv(envEncodeDriveDir)
			}
			opts.RemoteTimeout = remoteTimeout

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log := newLogger(verbose)
			pipeline := &engine.Pipeline{
				Log:     log,
				Out:     os.Stdout,
				Options: opts,
				NewBrowser: func(_ context.Context, tour *tourspec.Tour) (driver.Browser, error) {
					return driver.NewPlaywrightBrowser(log, tour.Settings.Browser)
				},
			}
			return pipeline.Run(ctx, args[0])
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Validate the tour and synthesize narration without opening a browser")
	flags.BoolVar(&opts.SkipTTS, "skip-tts", false, "Reuse narration clips from a previous run instead of synthesizing")
	flags.StringVar(&opts.WorkDir, "work-dir", "", "Working directory root (default: a temp directory, removed on success)")
	flags.StringVar(&opts.TTSBackend, "tts-backend", "local", "Narration backend: local or drive")
	flags.StringSliceVar(&opts.TTSCommand, "tts-command", nil, "Local TTS command template; placeholders {text} {output} {voice} {speed} {lang}")
	flags.StringVar(&opts.TTSDriveDir, "tts-drive-dir", "", "Shared-drive directory watched by the TTS worker")
	flags.StringVar(&opts.EncodeBackend, "encode-backend", "local", "Final encode backend: local or drive-nvenc")
	flags.StringVar(&opts.EncodeDriveDir, "encode-drive-dir", "", "Shared-drive directory watched by the NVENC worker")
	flags.DurationVar(&remoteTimeout, "remote-timeout", 0, "Timeout for shared-drive jobs (default: 10m TTS, 20m encode)")
	flags.StringVar(&opts.Zoom, "zoom", "off", "Virtual camera mode: off, auto or mobile")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	// Plain text on a terminal, machine-parsable elsewhere.
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Package report prints the end-of-run summary and enforces the tour's
// duration envelope.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/media"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// DurationError means the final video ran past the tour's hard maximum.
// Exceeding the soft target is only a warning; this is a failure.
type DurationError struct {
	Duration float64
	Max      float64
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("final duration exceeds the maximum (%.2fs > %.2fs)", e.Duration, e.Max)
}

// Reporter renders the per-step table and the output audit.
type Reporter struct {
	Log   *slog.Logger
	Out   io.Writer
	Probe media.DurationProber
}

// Print summarizes the run. It returns a DurationError when the output
// overruns max_duration_seconds; every other problem is log-only.
func (r *Reporter) Print(ctx context.Context, tour *tourspec.Tour, results []capture.StepResult, finalPath string, startedAt time.Time) error {
	r.Log.Info("tour report", "phase", "F")
	fmt.Fprintln(r.Out, stepTable(results, tour.Settings.Mode == tourspec.ModeContinuous))

	r.Log.Info("run totals", "phase", "F",
		"retries", TotalRetries(results),
		"wall_clock_s", fmt.Sprintf("%.2f", time.Since(startedAt).Seconds()))

	if finalPath == "" {
		return nil
	}
	stat, err := os.Stat(finalPath)
	if err != nil {
		r.Log.Warn("final output missing", "phase", "F", "path", finalPath, "error", err)
		return nil
	}

	duration, err := r.Probe(ctx, finalPath)
	if err != nil {
		return fmt.Errorf("probe final output: %w", err)
	}
	r.Log.Info("final output", "phase", "F",
		"path", finalPath,
		"duration_s", fmt.Sprintf("%.2f", duration),
		"size_mb", fmt.Sprintf("%.2f", float64(stat.Size())/(1024*1024)))

	if duration > tour.Meta.MaxDuration {
		return &DurationError{Duration: duration, Max: tour.Meta.MaxDuration}
	}
	if duration > tour.Meta.TargetDuration {
		r.Log.Warn("output exceeds target but stays within the maximum",
			"phase", "F",
			"target_s", fmt.Sprintf("%.2f", tour.Meta.TargetDuration),
			"duration_s", fmt.Sprintf("%.2f", duration))
	}
	return nil
}

// TotalRetries counts attempts beyond the first across all steps.
func TotalRetries(results []capture.StepResult) int {
	total := 0
	for _, r := range results {
		if retries := r.AttemptCount - 1; retries > 0 {
			total += retries
		}
	}
	return total
}

// stepTable renders the per-step summary; continuous runs also show each
// step's offset into the shared recording.
func stepTable(results []capture.StepResult, withOffsets bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Step", "Status", "Attempts", "Audio (s)", "Elapsed (s)"}
	if withOffsets {
		header = append(header, "Offset (s)")
	}
	tw.AppendHeader(header)

	for _, r := range results {
		status := "OK"
		if !r.Success {
			status = "FAILED"
		}
		row := table.Row{
			r.StepID,
			status,
			r.AttemptCount,
			fmt.Sprintf("%.2f", r.AudioDuration),
			fmt.Sprintf("%.2f", r.StepElapsed.Seconds()),
		}
		if withOffsets {
			row = append(row, fmt.Sprintf("%.2f", r.VideoOffset))
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(header)-2)
	for col := 3; col <= len(header); col++ {
		configs = append(configs, table.ColumnConfig{
			Number:      col,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

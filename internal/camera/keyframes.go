// Package camera derives a virtual-camera timeline from capture results
// and compiles it into an ffmpeg crop/scale/concat filter graph.
package camera

import (
	"math"

	"github.com/ivlev/tour2video/internal/capture"
	"github.com/ivlev/tour2video/internal/tourspec"
)

// Keyframe is a point on the virtual camera timeline.
type Keyframe struct {
	Time         float64 // seconds into the assembled video
	CX           float64 // crop center X in source pixels
	CY           float64 // crop center Y in source pixels
	Zoom         float64 // crop factor, 1.0 = full frame
	TransitionMS int     // ease-in-out duration to reach this state
}

type focusPreset struct {
	cx, cy, zoom float64
}

// Focus presets assume the editor layout at 1920x1080 with the sidebar
// hidden and the terminal panel open across the bottom third.
var focusPresets = map[string]focusPreset{
	"editor":   {780, 400, 2.2},
	"terminal": {960, 870, 2.4},
	"full":     {960, 540, 1.0},
}

const (
	defaultTransitionMS = 600
	// Full-view hold inserted when the focus jumps between two zoomed
	// regions, so every region change routes through an establishing pose.
	navHoldMS = 800

	mobileZoomBoost = 1.15
	maxZoom         = 3.0
)

// actionFocus maps one action to a focus region name. Empty means the
// action inherits the previous focus.
func actionFocus(a tourspec.Action) string {
	switch a.Type {
	case tourspec.ActionTypeText, tourspec.ActionFocusEditor,
		tourspec.ActionHighlightLines, tourspec.ActionSelectAllDelete:
		return "editor"
	case tourspec.ActionTerminalType:
		return "terminal"
	case tourspec.ActionCommandPalette, tourspec.ActionDismissPopups,
		tourspec.ActionWaitForLoad, tourspec.ActionWaitForSelector,
		tourspec.ActionHideSecondarySidebar:
		return "full"
	}
	return ""
}

// dominantFocus picks the focus region for a step. Any terminal action
// wins; otherwise the majority region; steps with no mappable actions
// default to the editor.
func dominantFocus(actions []tourspec.Action) string {
	counts := map[string]int{}
	for _, a := range actions {
		if f := actionFocus(a); f != "" {
			counts[f]++
		}
	}
	if len(counts) == 0 {
		return "editor"
	}
	if counts["terminal"] > 0 {
		return "terminal"
	}
	best, bestCount := "", 0
	for f, n := range counts {
		if n > bestCount {
			best, bestCount = f, n
		}
	}
	return best
}

// BuildPath generates the camera keyframe timeline from step results and
// their video offsets. Focus regions come from explicit per-step zoom
// overrides when present, otherwise from the step's action types.
func BuildPath(tour *tourspec.Tour, results []capture.StepResult, totalDuration float64) []Keyframe {
	keyframes := []Keyframe{
		{Time: 0, CX: 960, CY: 540, Zoom: 1.0, TransitionMS: 0},
	}

	prevFocus := "full"
	for _, result := range results {
		step := tour.StepByID(result.StepID)
		if step == nil {
			continue
		}

		var (
			focusName  string
			cx, cy, z  float64
			transition int
		)
		if step.Zoom != nil {
			focusName = step.Zoom.Focus
			if focusName == "" {
				focusName = "editor"
			}
			preset, ok := focusPresets[focusName]
			if !ok {
				preset = focusPresets["editor"]
			}
			cx, cy, z = preset.cx, preset.cy, preset.zoom
			if step.Zoom.CX != nil {
				cx = *step.Zoom.CX
			}
			if step.Zoom.CY != nil {
				cy = *step.Zoom.CY
			}
			if step.Zoom.Z != nil {
				z = *step.Zoom.Z
			}
			transition = step.Zoom.TransitionMS
			if transition == 0 {
				transition = defaultTransitionMS
			}
		} else {
			focusName = dominantFocus(step.Actions)
			preset := focusPresets[focusName]
			cx, cy, z = preset.cx, preset.cy, preset.zoom
			transition = defaultTransitionMS
		}

		stepStart := result.VideoOffset
		if focusName != prevFocus && prevFocus != "full" && focusName != "full" {
			full := focusPresets["full"]
			keyframes = append(keyframes,
				Keyframe{Time: stepStart, CX: full.cx, CY: full.cy, Zoom: full.zoom, TransitionMS: transition},
				Keyframe{Time: stepStart + float64(navHoldMS)/1000.0, CX: cx, CY: cy, Zoom: z, TransitionMS: transition},
			)
		} else {
			keyframes = append(keyframes,
				Keyframe{Time: stepStart, CX: cx, CY: cy, Zoom: z, TransitionMS: transition})
		}
		prevFocus = focusName
	}

	// End on a full view for a clean finish.
	if totalDuration > 0 {
		keyframes = append(keyframes, Keyframe{
			Time: math.Max(0, totalDuration-2.0),
			CX:   960, CY: 540, Zoom: 1.0,
			TransitionMS: defaultTransitionMS,
		})
	}
	return keyframes
}

// BoostForMobile raises every zoomed keyframe for narrower-aspect viewing.
func BoostForMobile(keyframes []Keyframe) {
	for i := range keyframes {
		if keyframes[i].Zoom > 1.0 {
			keyframes[i].Zoom = math.Min(keyframes[i].Zoom*mobileZoomBoost, maxZoom)
		}
	}
}

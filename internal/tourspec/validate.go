package tourspec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError reports a malformed or incomplete tour spec. It always
// names the offending field so the author can fix the script without
// re-running the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tour spec: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var knownActions = map[ActionType]struct{}{
	ActionWaitForLoad:          {},
	ActionDismissPopups:        {},
	ActionPause:                {},
	ActionWaitForHidden:        {},
	ActionScroll:               {},
	ActionTypeText:             {},
	ActionPressKey:             {},
	ActionClickSelector:        {},
	ActionFocusEditor:          {},
	ActionCommandPalette:       {},
	ActionTerminalType:         {},
	ActionWaitForSelector:      {},
	ActionSelectAllDelete:      {},
	ActionHighlightLines:       {},
	ActionHideSecondarySidebar: {},
}

var knownAssertions = map[AssertionType]struct{}{
	AssertURLContains:    {},
	AssertTitleContains:  {},
	AssertElementVisible: {},
}

// Load reads a tour spec from a YAML (or JSON) file, validates it and
// returns the normalized result.
func Load(path string) (*Tour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tour spec: %w", err)
	}

	var tour Tour
	if err := yaml.Unmarshal(data, &tour); err != nil {
		return nil, invalid("(document)", "not valid YAML: %v", err)
	}

	if err := tour.normalize(); err != nil {
		return nil, err
	}
	return &tour, nil
}

// normalize fills defaults, computes per-step budgets and rejects anything
// the pipeline would otherwise trip over mid-run.
func (t *Tour) normalize() error {
	if t.Meta.Title == "" {
		return invalid("meta.title", "missing")
	}
	if t.Meta.TargetDuration <= 0 {
		return invalid("meta.target_duration_seconds", "must be > 0")
	}
	if t.Meta.MaxDuration < t.Meta.TargetDuration {
		return invalid("meta.max_duration_seconds",
			"must be >= target_duration_seconds (%.2f < %.2f)",
			t.Meta.MaxDuration, t.Meta.TargetDuration)
	}

	s := &t.Settings
	if s.Viewport.Width == 0 && s.Viewport.Height == 0 {
		s.Viewport = Viewport{Width: 1920, Height: 1080}
	}
	if s.Viewport.Width <= 0 || s.Viewport.Height <= 0 {
		return invalid("settings.viewport", "width and height must be > 0")
	}
	if s.Voice == "" {
		return invalid("settings.voice", "missing")
	}
	if s.SpeechSpeed <= 0 {
		return invalid("settings.speech_speed", "must be > 0")
	}
	if s.Language == "" {
		return invalid("settings.language", "missing")
	}
	if s.StepTimeout <= 0 {
		return invalid("settings.default_step_timeout", "must be > 0")
	}
	if s.MaxRetries < 0 {
		return invalid("settings.max_retries_per_step", "must be >= 0")
	}
	if s.Browser == "" {
		return invalid("settings.browser", "missing")
	}
	switch s.Mode {
	case "":
		s.Mode = ModeIndependent
	case ModeIndependent, ModeContinuous:
	default:
		return invalid("settings.mode", "must be %q or %q, got %q",
			ModeIndependent, ModeContinuous, s.Mode)
	}

	if len(t.Steps) == 0 {
		return invalid("steps", "must be a non-empty array")
	}
	seen := make(map[string]struct{}, len(t.Steps))
	budget := t.Meta.TargetDuration / float64(len(t.Steps))
	for i := range t.Steps {
		step := &t.Steps[i]
		field := fmt.Sprintf("steps[%d]", i)
		if step.ID == "" {
			return invalid(field+".id", "missing")
		}
		if _, dup := seen[step.ID]; dup {
			return invalid(field+".id", "duplicate id %q", step.ID)
		}
		seen[step.ID] = struct{}{}
		if strings.TrimSpace(step.Narration) == "" {
			return invalid(field+".narration", "step %q has empty narration", step.ID)
		}
		if step.URL == "" {
			return invalid(field+".url", "missing")
		}
		for j, a := range step.Assertions {
			if _, ok := knownAssertions[a.Type]; !ok {
				return invalid(fmt.Sprintf("%s.assertions[%d].type", field, j),
					"unknown assertion type %q", a.Type)
			}
		}
		for j, a := range step.Actions {
			if _, ok := knownActions[a.Type]; !ok {
				return invalid(fmt.Sprintf("%s.actions[%d].type", field, j),
					"unknown action type %q", a.Type)
			}
		}
		step.TimeBudgetSeconds = budget
	}

	o := &t.Output
	if o.Path == "" {
		return invalid("output.path", "missing")
	}
	if o.VideoCodec == "" {
		return invalid("output.video_codec", "missing")
	}
	if o.VideoPreset == "" {
		return invalid("output.video_preset", "missing")
	}
	if o.VideoCRF <= 0 {
		return invalid("output.video_crf", "must be > 0")
	}
	if o.AudioCodec == "" {
		return invalid("output.audio_codec", "missing")
	}
	if o.AudioBitrate == "" {
		return invalid("output.audio_bitrate", "missing")
	}

	return nil
}

// StepByID returns the step with the given id, or nil.
func (t *Tour) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

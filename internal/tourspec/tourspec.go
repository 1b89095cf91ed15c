package tourspec

// Tour is a validated, normalized tour script.
type Tour struct {
	Meta     Meta     `yaml:"meta"`
	Settings Settings `yaml:"settings"`
	PreSetup []string `yaml:"pre_setup"`
	Steps    []Step   `yaml:"steps"`
	Output   Output   `yaml:"output"`
}

// Meta carries the title and the duration envelope for the final video.
type Meta struct {
	Title          string  `yaml:"title"`
	TargetDuration float64 `yaml:"target_duration_seconds"`
	MaxDuration    float64 `yaml:"max_duration_seconds"`
}

// Mode selects how steps are captured.
type Mode string

const (
	// ModeIndependent records every step in its own recording context.
	ModeIndependent Mode = "independent"
	// ModeContinuous records all steps into one uninterrupted clip.
	ModeContinuous Mode = "continuous"
)

// Settings are capture-wide knobs shared by every step.
type Settings struct {
	Viewport        Viewport `yaml:"viewport"`
	Voice           string   `yaml:"voice"`
	SpeechSpeed     float64  `yaml:"speech_speed"`
	Language        string   `yaml:"language"`
	StepTimeout     float64  `yaml:"default_step_timeout"`
	MaxRetries      int      `yaml:"max_retries_per_step"`
	Browser         string   `yaml:"browser"`
	Mode            Mode     `yaml:"mode"`
}

// Viewport is the recording resolution in pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Output describes the final deliverable and its encoding parameters.
type Output struct {
	Path         string `yaml:"path"`
	VideoCodec   string `yaml:"video_codec"`
	VideoPreset  string `yaml:"video_preset"`
	VideoCRF     int    `yaml:"video_crf"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	IntroClip    string `yaml:"intro_clip"`
	OutroClip    string `yaml:"outro_clip"`
	Loudnorm     *bool  `yaml:"loudnorm"`
}

// LoudnormEnabled reports whether loudness normalization applies (default on).
func (o Output) LoudnormEnabled() bool {
	return o.Loudnorm == nil || *o.Loudnorm
}

// Step is one unit of scripted action with its narration.
type Step struct {
	ID         string      `yaml:"id"`
	URL        string      `yaml:"url"`
	Narration  string      `yaml:"narration"`
	Assertions []Assertion `yaml:"assertions"`
	Actions    []Action    `yaml:"actions"`
	Scroll     *Scroll     `yaml:"scroll"`
	Zoom       *ZoomOverride `yaml:"zoom"`

	// TimeBudgetSeconds is target_duration divided evenly across steps.
	// Informational only; the orchestrator never schedules by it.
	TimeBudgetSeconds float64 `yaml:"-"`
}

// AssertionType enumerates the recognized pre-condition checks.
type AssertionType string

const (
	AssertURLContains    AssertionType = "url_contains"
	AssertTitleContains  AssertionType = "title_contains"
	AssertElementVisible AssertionType = "element_visible"
)

// Assertion is a pre-condition verified before a step's actions run.
type Assertion struct {
	Type  AssertionType `yaml:"type"`
	Value string        `yaml:"value"`
}

// ActionType enumerates the recognized on-page action kinds.
type ActionType string

const (
	ActionWaitForLoad        ActionType = "wait_for_load"
	ActionDismissPopups      ActionType = "dismiss_popups"
	ActionPause              ActionType = "pause"
	ActionWaitForHidden      ActionType = "wait_for_hidden"
	ActionScroll             ActionType = "scroll"
	ActionTypeText           ActionType = "type_text"
	ActionPressKey           ActionType = "press_key"
	ActionClickSelector      ActionType = "click_selector"
	ActionFocusEditor        ActionType = "focus_editor"
	ActionCommandPalette     ActionType = "command_palette"
	ActionTerminalType       ActionType = "terminal_type"
	ActionWaitForSelector    ActionType = "wait_for_selector"
	ActionSelectAllDelete    ActionType = "select_all_and_delete"
	ActionHighlightLines     ActionType = "highlight_lines"
	ActionHideSecondarySidebar ActionType = "hide_secondary_sidebar"
)

// Action is one typed on-page operation. Fields beyond Type are interpreted
// per kind by the page driver; the core only dispatches on Type.
type Action struct {
	Type       ActionType `yaml:"type"`
	Selector   string     `yaml:"selector"`
	Text       string     `yaml:"text"`
	Key        string     `yaml:"key"`
	Command    string     `yaml:"command"`
	Duration   float64    `yaml:"duration"`
	DelayMS    int        `yaml:"delay"`
	TimeoutMS  int        `yaml:"timeout"`
	State      string     `yaml:"state"`
	PressEnter *bool      `yaml:"press_enter"`
	FromLine   int        `yaml:"from_line"`
	ToLine     int        `yaml:"to_line"`
	To         string     `yaml:"to"`
	Speed      string     `yaml:"speed"`
	PauseAtBottom float64 `yaml:"pause_at_bottom"`
}

// Scroll is an optional smooth scroll performed after a step's actions.
type Scroll struct {
	To            string  `yaml:"to"`
	Speed         string  `yaml:"speed"`
	PauseAtBottom float64 `yaml:"pause_at_bottom"`
}

// ZoomOverride pins a step's virtual-camera focus instead of deriving it
// from the step's actions.
type ZoomOverride struct {
	Focus        string   `yaml:"focus"`
	CX           *float64 `yaml:"cx"`
	CY           *float64 `yaml:"cy"`
	Z            *float64 `yaml:"z"`
	TransitionMS int      `yaml:"transition_ms"`
}

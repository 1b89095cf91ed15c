package camera

import (
	"os"

	"gopkg.in/yaml.v3"
)

type timelineDump struct {
	Keyframes []timelineKeyframe `yaml:"keyframes"`
}

type timelineKeyframe struct {
	Time         float64 `yaml:"time"`
	CX           float64 `yaml:"cx"`
	CY           float64 `yaml:"cy"`
	Zoom         float64 `yaml:"zoom"`
	TransitionMS int     `yaml:"transition_ms"`
}

// WriteTimeline dumps the derived keyframes to a YAML file next to the
// other assembly artifacts, for inspecting what the compiler decided.
func WriteTimeline(keyframes []Keyframe, path string) error {
	dump := timelineDump{Keyframes: make([]timelineKeyframe, 0, len(keyframes))}
	for _, kf := range keyframes {
		dump.Keyframes = append(dump.Keyframes, timelineKeyframe{
			Time:         kf.Time,
			CX:           kf.CX,
			CY:           kf.CY,
			Zoom:         kf.Zoom,
			TransitionMS: kf.TransitionMS,
		})
	}
	data, err := yaml.Marshal(&dump)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

package camera

import "math"

// Segment is one keyframe-pair span of the timeline, ready to be rendered
// to filter syntax. Keeping this split from the string rendering keeps the
// timeline math free of escaping concerns.
type Segment struct {
	Index int     // 1-based keyframe index, used for stream labels
	Start float64 // seconds
	End   float64 // seconds

	From Keyframe
	To   Keyframe

	// Static segments hold one crop for their whole duration. Animated
	// segments ease from From to To over TransitionFrames output frames.
	Static           bool
	TransitionFrames int
}

// BuildSegments pairs consecutive keyframes into renderable segments.
// Zero-length spans (coincident keyframes) are dropped.
func BuildSegments(keyframes []Keyframe, fps int) []Segment {
	if len(keyframes) < 2 {
		return nil
	}

	segments := make([]Segment, 0, len(keyframes)-1)
	for i := 1; i < len(keyframes); i++ {
		prev, curr := keyframes[i-1], keyframes[i]
		dur := curr.Time - prev.Time
		if dur <= 0 {
			continue
		}

		transDur := math.Min(float64(curr.TransitionMS)/1000.0, dur)
		transFrames := int(transDur * float64(fps))
		if transFrames < 1 {
			transFrames = 1
		}

		segments = append(segments, Segment{
			Index:            i,
			Start:            prev.Time,
			End:              curr.Time,
			From:             prev,
			To:               curr,
			Static:           isStatic(prev, curr),
			TransitionFrames: transFrames,
		})
	}
	return segments
}

// isStatic reports whether the camera state is effectively unchanged
// across the pair, within sub-pixel and sub-thousandth zoom tolerance.
func isStatic(a, b Keyframe) bool {
	return math.Abs(a.Zoom-b.Zoom) < 0.001 &&
		math.Abs(a.CX-b.CX) < 1 &&
		math.Abs(a.CY-b.CY) < 1
}

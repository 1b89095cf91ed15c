package camera

import (
	"fmt"
	"strings"
)

// FilterComplex renders segments to an ffmpeg filter graph: each segment's
// video and audio are trimmed from the one source, cropped and scaled back
// to full resolution, and concatenated in order. Audio passes through each
// segment untouched so sync never drifts. Static crops are plain numbers;
// animated crops interpolate per output frame with a smoothstep ease,
// which is far cheaper than a zoompan pass over the whole video.
func FilterComplex(segments []Segment, srcW, srcH int) string {
	if len(segments) == 0 {
		return ""
	}

	var parts []string
	var labels strings.Builder
	for _, seg := range segments {
		v := fmt.Sprintf("seg%d", seg.Index)
		a := fmt.Sprintf("aseg%d", seg.Index)
		parts = append(parts,
			fmt.Sprintf("[0:v]trim=start=%.4f:end=%.4f,setpts=PTS-STARTPTS[%s_raw]", seg.Start, seg.End, v),
			fmt.Sprintf("[0:a]atrim=start=%.4f:end=%.4f,asetpts=PTS-STARTPTS[%s]", seg.Start, seg.End, a),
		)

		if seg.Static {
			w, h, x, y := staticCrop(seg.To, srcW, srcH)
			parts = append(parts, fmt.Sprintf(
				"[%s_raw]crop=%d:%d:%d:%d,scale=%d:%d:flags=lanczos,setsar=1[%s]",
				v, w, h, x, y, srcW, srcH, v))
		} else {
			wExpr, hExpr, xExpr, yExpr := animatedCrop(seg, srcW, srcH)
			parts = append(parts, fmt.Sprintf(
				"[%s_raw]crop=w='%s':h='%s':x='%s':y='%s',scale=%d:%d:flags=lanczos,setsar=1[%s]",
				v, wExpr, hExpr, xExpr, yExpr, srcW, srcH, v))
		}

		labels.WriteString("[" + v + "][" + a + "]")
	}

	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][aout]",
		labels.String(), len(segments)))
	return strings.Join(parts, ";")
}

// staticCrop computes a fixed crop window for the target state: the window
// is the source divided by zoom, floored to even dimensions, with its
// origin clamped inside the frame.
func staticCrop(kf Keyframe, srcW, srcH int) (w, h, x, y int) {
	w = evenFloor(float64(srcW)/kf.Zoom, srcW)
	h = evenFloor(float64(srcH)/kf.Zoom, srcH)
	x = clampInt(int(kf.CX-float64(w)/2), 0, srcW-w)
	y = clampInt(int(kf.CY-float64(h)/2), 0, srcH-h)
	return w, h, x, y
}

// animatedCrop builds per-frame crop expressions. The eased progress is
// s = p*p*(3-2*p) with p = clip(n/transFrames, 0, 1), so the state holds
// at the To keyframe once the transition window has elapsed. Commas inside
// expressions must be escaped for filter_complex.
func animatedCrop(seg Segment, srcW, srcH int) (w, h, x, y string) {
	p := fmt.Sprintf("clip(n/%d\\,0\\,1)", seg.TransitionFrames)
	s := fmt.Sprintf("(%s*%s*(3-2*%s))", p, p, p)

	z := fmt.Sprintf("%.3f+%.3f*%s", seg.From.Zoom, seg.To.Zoom-seg.From.Zoom, s)
	cx := fmt.Sprintf("%.1f+%.1f*%s", seg.From.CX, seg.To.CX-seg.From.CX, s)
	cy := fmt.Sprintf("%.1f+%.1f*%s", seg.From.CY, seg.To.CY-seg.From.CY, s)

	w = fmt.Sprintf("max(2\\,floor(%d/(%s)/2)*2)", srcW, z)
	h = fmt.Sprintf("max(2\\,floor(%d/(%s)/2)*2)", srcH, z)
	x = fmt.Sprintf("clip((%s)-(%s)/2\\,0\\,%d-(%s))", cx, w, srcW, w)
	y = fmt.Sprintf("clip((%s)-(%s)/2\\,0\\,%d-(%s))", cy, h, srcH, h)
	return w, h, x, y
}

func evenFloor(v float64, limit int) int {
	n := int(v) / 2 * 2
	if n < 2 {
		n = 2
	}
	if n > limit {
		n = limit
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

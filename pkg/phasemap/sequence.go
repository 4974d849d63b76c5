package phasemap

import (
	"fmt"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A Sequence is the record of one acquisition campaign as it moves
// through the pipeline. Each stage fills in its own fields and leaves
// the earlier ones alone.
type Sequence struct {
	ID   int
	Name string
	Raw  RawFrameStack

	Clean     *CleanMap
	Agg       *Aggregate
	Ellipse   *Ellipse
	Transform RigidTransform
	RegMap    *emath.MaskedGrid
	RegFrames emath.MaskedStack
	Fit       *FitResult

	frameNums []int // loader bookkeeping, parallel to Raw.Frames
}

func NewSequence(id int, raw RawFrameStack) *Sequence {
	return &Sequence{ID: id, Name: fmt.Sprintf("%03d", id), Raw: raw}
}

func (s *Sequence) String() string {
	str := fmt.Sprintf("Seq[%3d, %d frames", s.ID, len(s.Raw.Frames))
	if s.Raw.Flipped() {
		str += ", flipped"
	}
	if s.Agg != nil {
		str += fmt.Sprintf(", %d selected", len(s.Agg.Selected))
	}
	if s.Ellipse != nil {
		str += ", " + s.Ellipse.String()
	}
	return str + "]"
}

// AsMap exposes the whole record as plain nested maps and slices, for
// serializers that know nothing about these types.
func (s *Sequence) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":          s.ID,
		"name":        s.Name,
		"names":       s.Raw.Names,
		"orientation": s.Raw.Orientation,
		"rawmap":      stackAsMaps(s.Raw.Frames),
	}

	if s.Clean != nil {
		m["cleanmap"] = stackAsMaps(s.Clean.Frames)
		m["diffrms"] = s.Clean.DiffRMS
	}
	if s.Agg != nil {
		m["medmap"] = gridAsMap(s.Agg.Combined)
		m["supermask"] = s.Agg.SuperMask
		m["selected"] = s.Agg.Selected
		m["threshold"] = s.Agg.Threshold
	}
	if s.Ellipse != nil {
		m["ellipse"] = s.Ellipse.AsMap()
		m["transform"] = map[string]interface{}{
			"xc": s.Transform.Xc, "yc": s.Transform.Yc,
			"dx": s.Transform.Dx, "dy": s.Transform.Dy,
			"phi": s.Transform.Phi,
		}
	}
	if s.RegMap != nil {
		m["RegMap"] = gridAsMap(s.RegMap)
		m["RegCleanMap"] = stackAsMaps(s.RegFrames)
	}
	if s.Fit != nil {
		m["coeff"] = s.Fit.Coeff
		m["PTTF"] = gridAsMap(s.Fit.PTTF)
		m["model"] = gridAsMap(s.Fit.Model)
		m["residual"] = gridAsMap(s.Fit.Residual)
		m["RegMap-PTTF"] = gridAsMap(s.Fit.MinusPTTF)
	}

	return m
}

func (e Ellipse) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"a": e.A, "b": e.B, "b/a": e.B / e.A,
		"xc": e.Xc, "yc": e.Yc, "phi": e.Phi,
		"rf_inverted": e.RFInverted,
		"iterations":  e.Iterations,
	}
}

func gridAsMap(g *emath.MaskedGrid) map[string]interface{} {
	if g == nil {
		return nil
	}
	return map[string]interface{}{
		"nx":   g.Dx(),
		"ny":   g.Dy(),
		"data": g.Values(),
		"mask": g.MaskCopy(),
	}
}

func stackAsMaps(s emath.MaskedStack) []map[string]interface{} {
	out := make([]map[string]interface{}, len(s))
	for i, g := range s {
		out[i] = gridAsMap(g)
	}
	return out
}

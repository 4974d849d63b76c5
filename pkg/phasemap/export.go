package phasemap

import (
	"fmt"
	"io/ioutil"
	"log"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/sagmap/pkg/emath"
)

const quicklookSize = 400

// Summary is the per-campaign result that gets written out as yaml; the
// maps themselves go into quicklooks.
func (c *Campaign) Summary() map[string]interface{} {
	seqs := []map[string]interface{}{}
	for _, id := range c.IDs() {
		s := c.Sequences[id]
		m := map[string]interface{}{
			"id":          s.ID,
			"frames":      len(s.Raw.Frames),
			"orientation": s.Raw.Orientation,
		}
		if s.Clean != nil {
			m["diffrms"] = s.Clean.DiffRMS
		}
		if s.Agg != nil {
			m["selected"] = s.Agg.Selected
		}
		if s.Ellipse != nil {
			m["ellipse"] = s.Ellipse.AsMap()
		}
		if s.Fit != nil {
			m["coeff"] = s.Fit.Coeff
			m["residual_rms"] = s.Fit.Residual.StdDev()
		}
		seqs = append(seqs, m)
	}

	sum := map[string]interface{}{
		"threshold": c.Threshold,
		"sequences": seqs,
	}
	if c.RefFrame != nil {
		sum["refframe"] = map[string]interface{}{
			"a": c.RefFrame.A, "b": c.RefFrame.B,
			"xc": c.RefFrame.Xc, "yc": c.RefFrame.Yc,
			"crop": c.RefFrame.Crop, "pixels": c.RefFrame.PupilCount(),
		}
	}
	if c.ZeroG != nil {
		pairs := []map[string]interface{}{}
		for i, p := range c.Pairs {
			pairs = append(pairs, map[string]interface{}{
				"u": p.U, "v": p.V, "tag": p.Tag,
				"coeff": c.ZeroG.Coeffs[i],
				"rms":   c.ZeroG.RMS[i],
			})
		}
		sum["zerog"] = map[string]interface{}{
			"pairs":        pairs,
			"median_coeff": c.ZeroG.MedianCoeff,
		}
	}
	if c.Delta != nil {
		sum["delta"] = map[string]interface{}{
			"gain":        c.Delta.Gain,
			"gain_fitted": c.Delta.GainFitted,
			"rms":         c.Delta.DMap.StdDev(),
		}
	}
	if c.PSD != nil {
		sum["psd"] = map[string]interface{}{
			"freq":  c.PSD.Freq,
			"power": c.PSD.Power,
			"error": c.PSD.Error,
		}
	}
	return sum
}

func (c *Campaign) WriteSummary(filename string) error {
	b, err := yaml.Marshal(c.Summary())
	if err != nil {
		return fmt.Errorf("summary yaml: %v", err)
	}
	if err := ioutil.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("write summary %s: %v", filename, err)
	}
	log.Printf("Wrote %s\n", filename)
	return nil
}

// WriteQuicklooks dumps the interesting maps of every stage that has run
// into dir, as PNG and HDR.
func (c *Campaign) WriteQuicklooks(dir string) error {
	type quicklook struct {
		name, title string
		g           *emath.MaskedGrid
	}
	qls := []quicklook{}

	for _, id := range c.IDs() {
		s := c.Sequences[id]
		if s.Agg != nil {
			qls = append(qls, quicklook{fmt.Sprintf("seq%03d-combined", id), fmt.Sprintf("seq %d combined", id), s.Agg.Combined})
		}
		if s.RegMap != nil {
			qls = append(qls, quicklook{fmt.Sprintf("seq%03d-registered", id), fmt.Sprintf("seq %d registered", id), s.RegMap})
		}
		if s.Fit != nil {
			qls = append(qls, quicklook{fmt.Sprintf("seq%03d-residual", id), fmt.Sprintf("seq %d residual", id), s.Fit.Residual})
		}
	}
	if c.ZeroG != nil {
		qls = append(qls, quicklook{"zerog-median", "zero-g median residual", c.ZeroG.Median})
	}
	if c.Delta != nil {
		qls = append(qls, quicklook{"delta", fmt.Sprintf("delta, gain %.3f", c.Delta.Gain), c.Delta.DMap})
	}

	for _, ql := range qls {
		base := filepath.Join(dir, ql.name)
		if err := ql.g.ToImg(ql.title, base+".png", quicklookSize); err != nil {
			return err
		}
		if err := ql.g.WriteHDR(base + ".hdr"); err != nil {
			return err
		}
		if c.Verbosity > 1 {
			log.Printf("Wrote %s.{png,hdr}\n", base)
		}
	}
	return nil
}

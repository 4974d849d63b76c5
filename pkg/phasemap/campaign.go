package phasemap

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// A Campaign holds every sequence of a test campaign and runs the
// pipeline over them. Per-sequence stages run on a pool of NumWorkers
// goroutines; the reference frame and basis are built between stages and
// only read afterwards.
type Campaign struct {
	Config

	Sequences map[int]*Sequence

	Threshold float64
	RefFrame  *ReferenceFrame
	Basis     *PolynomialBasis

	Pairs []ZeroGPair
	ZeroG *ZeroGResult
	Delta *Delta
	PSD   *PSD
}

func NewCampaign() Campaign {
	return Campaign{
		Config:    NewConfig(),
		Sequences: map[int]*Sequence{},
	}
}

func (c *Campaign) AddSequence(s *Sequence) { c.Sequences[s.ID] = s }

// IDs returns the sequence ids in ascending order.
func (c *Campaign) IDs() []int {
	ids := make([]int, 0, len(c.Sequences))
	for id := range c.Sequences {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (c *Campaign) String() string {
	str := "Campaign [\n"
	for _, id := range c.IDs() {
		str += fmt.Sprintf("  %s\n", c.Sequences[id])
	}
	return str + "]\n"
}

// RunCGVT takes every sequence from raw frames to a polynomial fit.
func (c *Campaign) RunCGVT() error {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("config: %v", err)
	}
	for _, stage := range []struct {
		name string
		f    func() error
	}{
		{"filter", c.Filter},
		{"threshold", c.SetThreshold},
		{"aggregate", c.Aggregate},
		{"ellipse", c.FitEllipses},
		{"register", c.Register},
		{"refframe", c.BuildReferenceFrame},
		{"decompose", c.Decompose},
	} {
		if err := stage.f(); err != nil {
			return fmt.Errorf("%s: %w", stage.name, err)
		}
	}
	return nil
}

// RunZeroG pairs the fitted sequences and derives the delta map and its
// PSD. It needs RunCGVT to have completed, and does nothing when no pairs
// are configured.
func (c *Campaign) RunZeroG() error {
	pairs, err := c.Config.ZeroGPairs()
	if err != nil {
		return fmt.Errorf("zerog: %w", err)
	}
	c.Pairs = pairs
	if len(pairs) == 0 {
		log.Printf("No zero-g pairing configured, skipping zero-g\n")
		return nil
	}

	log.Printf("ZeroG-ing %d pairs\n", len(pairs))
	if c.ZeroG, err = ZeroG(c.Fits(), pairs); err != nil {
		return fmt.Errorf("zerog: %w", err)
	}
	if c.Verbosity > 0 {
		for i, p := range pairs {
			log.Printf(" -- pair (%3d,%3d) %-8s rms %.4g\n", p.U, p.V, p.Tag, c.ZeroG.RMS[i])
		}
	}

	if len(c.DeltaSelections) == 0 && len(pairs) < 2 {
		log.Printf("Only %d pair, no delta map\n", len(pairs))
		return nil
	}
	sel0, sel1, err := c.Config.DeltaRanges(len(pairs))
	if err != nil {
		return fmt.Errorf("delta: %w", err)
	}
	reducer, err := c.GetDeltaReducer()
	if err != nil {
		return fmt.Errorf("delta: %v", err)
	}
	if c.Delta, err = DeltaMap(c.ZeroG.MinusPTTF, sel0, sel1, c.DeltaGain, reducer); err != nil {
		return fmt.Errorf("delta: %w", err)
	}
	log.Printf("Delta map %s vs %s, gain %.4f (fitted: %v), rms %.4g\n", sel0, sel1, c.Delta.Gain, c.Delta.GainFitted, c.Delta.DMap.StdDev())

	return c.computePSD()
}

func (c *Campaign) computePSD() error {
	var aperture Ellipse
	if c.RefFrame != nil {
		aperture = Ellipse{A: c.RefFrame.A, B: c.RefFrame.B, Xc: float64(c.RefFrame.Xc), Yc: float64(c.RefFrame.Yc)}
	}
	win, err := GetWindow(c.PSDWindow, aperture)
	if err != nil {
		return fmt.Errorf("psd: %v", err)
	}
	if c.PSD, err = ComputePSD(c.Delta.DMap, c.PSDBins, c.PSDDelta, win); err != nil {
		return fmt.Errorf("psd: %w", err)
	}
	if c.Verbosity > 0 {
		log.Printf("Delta map PSD: %d bins, Parseval error %.2g\n", len(c.PSD.Power), c.PSD.Error)
	}
	return nil
}

func (c *Campaign) Filter() error {
	log.Printf("Filtering %d sequences\n", len(c.Sequences))
	return c.forEachSequence("filter", func(s *Sequence) error {
		clean, err := FilterOutliers(c.Config, s.Raw)
		if err != nil {
			return err
		}
		s.Clean = clean
		return nil
	})
}

// SetThreshold fixes the frame selection threshold, either from config
// or from the distribution of valid counts over all the clean frames.
func (c *Campaign) SetThreshold() error {
	counts := []int{}
	for _, id := range c.IDs() {
		if s := c.Sequences[id]; s.Clean != nil {
			counts = append(counts, s.Clean.Frames.Counts()...)
		}
	}
	if len(counts) > 0 {
		log.Printf("Valid pixel counts: %s\n", countSummary(counts))
	}

	if c.FrameThreshold != nil {
		c.Threshold = *c.FrameThreshold
		log.Printf("Frame threshold %.1f (from config)\n", c.Threshold)
		return nil
	}

	t, err := SelectionThreshold(counts, c.ThresholdPercentile)
	if err != nil {
		return err
	}
	c.Threshold = t
	log.Printf("Frame threshold %.1f (%.2f percentile)\n", c.Threshold, c.ThresholdPercentile)
	return nil
}

func (c *Campaign) Aggregate() error {
	reducer, err := c.GetFrameReducer()
	if err != nil {
		return err
	}
	log.Printf("Computing combined maps and supermasks\n")
	return c.forEachSequence("aggregate", func(s *Sequence) error {
		agg, err := AggregateFrames(s.Clean, c.Threshold, reducer)
		if err != nil {
			return err
		}
		s.Agg = agg
		return nil
	})
}

func (c *Campaign) FitEllipses() error {
	log.Printf("Fitting aperture ellipses\n")
	return c.forEachSequence("ellipse", func(s *Sequence) error {
		g := s.Agg.Combined
		e, err := FitEllipse(c.Config, s.Agg.SuperMask, g.Dx(), g.Dy())
		if err != nil {
			return err
		}
		s.Ellipse = &e
		if c.Verbosity > 0 {
			log.Printf(" -- seq %3d: %s\n", s.ID, e)
		}
		return nil
	})
}

func (c *Campaign) Register() error {
	log.Printf("Registering maps\n")
	return c.forEachSequence("register", func(s *Sequence) error {
		g := s.Agg.Combined
		tx, ty := FrameCenter(g.Dx(), g.Dy())
		s.Transform = NewRigidTransform(*s.Ellipse, tx, ty)

		reg, err := s.Transform.Apply(g)
		if err != nil {
			return err
		}
		frames, err := RegisterFrames(s.Clean.Frames, *s.Ellipse)
		if err != nil {
			return err
		}

		s.RegMap, s.RegFrames = reg, frames
		if c.Verbosity > 0 {
			log.Printf(" -- seq %3d: %s\n", s.ID, s.Transform)
		}
		return nil
	})
}

// BuildReferenceFrame sets up the pupil and polynomial basis that every
// fit shares.
func (c *Campaign) BuildReferenceFrame() error {
	ids := c.IDs()
	if len(ids) == 0 {
		return fmt.Errorf("no sequences")
	}

	var err error
	if c.SemiMajor > 0 && c.SemiMinor > 0 {
		ref, exists := c.Sequences[c.RefSequence]
		if !exists || ref.RegMap == nil {
			return fmt.Errorf("%w: reference sequence %d", ErrUnknownSequence, c.RefSequence)
		}
		c.RefFrame, err = NewReferenceFrame(c.SemiMajor, c.SemiMinor, ref.RegMap.Dx(), ref.RegMap.Dy(), c.Crop)
	} else {
		ellipses := []Ellipse{}
		for _, id := range ids {
			ellipses = append(ellipses, *c.Sequences[id].Ellipse)
		}
		g := c.Sequences[ids[0]].RegMap
		c.RefFrame, err = MeanAxesFrame(ellipses, g.Dx(), g.Dy(), c.Crop)
	}
	if err != nil {
		return err
	}
	log.Printf("Reference frame %s\n", c.RefFrame)

	log.Printf("Calculating %d polynomials\n", c.NZernike)
	c.Basis, err = NewPolynomialBasis(c.RefFrame, c.NZernike)
	return err
}

func (c *Campaign) Decompose() error {
	log.Printf("Fitting polynomials\n")
	return c.forEachSequence("decompose", func(s *Sequence) error {
		fit, err := Decompose(c.Basis, s.RegMap, c.SharedCovariance)
		if err != nil {
			return err
		}
		s.Fit = fit
		return nil
	})
}

// Fits collects the polynomial fits by sequence id.
func (c *Campaign) Fits() map[int]*FitResult {
	fits := map[int]*FitResult{}
	for id, s := range c.Sequences {
		if s.Fit != nil {
			fits[id] = s.Fit
		}
	}
	return fits
}

type stageJob struct {
	Seq *Sequence
	Err error
}

// forEachSequence runs f over all the sequences on a pool of goroutines.
// Each call only touches its own Sequence. Failed sequences abort the
// stage, unless ContinueOnError is set, in which case they are dropped
// from the campaign.
func (c *Campaign) forEachSequence(stage string, f func(*Sequence) error) error {
	ids := c.IDs()
	var wg sync.WaitGroup
	jobsChan := make(chan stageJob, len(ids))
	resultsChan := make(chan stageJob, len(ids))

	nWorkers := c.NumWorkers
	if nWorkers < 1 {
		nWorkers = 1
	}
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				job.Err = f(job.Seq)
				resultsChan <- job
			}
		}()
	}

	for _, id := range ids {
		jobsChan <- stageJob{Seq: c.Sequences[id]}
	}
	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	failed := []stageJob{}
	for result := range resultsChan {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Seq.ID < failed[j].Seq.ID })

	if !c.ContinueOnError {
		return fmt.Errorf("sequence %d: %w", failed[0].Seq.ID, failed[0].Err)
	}
	for _, job := range failed {
		log.Printf("%s: dropping sequence %d: %v\n", stage, job.Seq.ID, job.Err)
		delete(c.Sequences, job.Seq.ID)
	}
	if len(c.Sequences) == 0 {
		return fmt.Errorf("every sequence failed, last: %w", failed[len(failed)-1].Err)
	}
	return nil
}

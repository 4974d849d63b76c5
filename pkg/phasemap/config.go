package phasemap

import (
	"fmt"
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/sagmap/pkg/emath"
)

type Config struct {
	Verbosity  int
	NumWorkers int // per-sequence stages run on this many goroutines

	// Loader: height = (raw - InputOffset) * InputScale, unless the TIFF
	// ImageDescription carries its own "scale=" / "offset=".
	InputScale  float64
	InputOffset float64

	// Outlier filter
	KernelSize     int
	Sigma          float64
	SigmaClipIters int

	// Frame aggregation. A nil FrameThreshold means "derive it from the
	// ThresholdPercentile of all the per-frame valid counts".
	FrameThreshold      *float64
	ThresholdPercentile float64
	FrameReducer        string

	// Ellipse fit
	BoundaryThreshold float64
	InsideTolerance   float64
	MaxIterations     int

	// Reference frame. If SemiMajor and SemiMinor are both set, they define
	// the pupil and RefSequence supplies the shape; otherwise the pupil uses
	// the mean fitted axes, shrunk by Crop.
	SemiMajor   float64
	SemiMinor   float64
	RefSequence int
	Crop        float64

	// Polynomial decomposition
	NZernike         int
	SharedCovariance bool

	// Drop sequences that fail a per-sequence stage instead of aborting.
	ContinueOnError bool

	// ZeroG pairing: either explicit groups of sequence ids, or
	// [start+, start-] pairs with a count each.
	ZeroGPlus   [][]int
	ZeroGMinus  [][]int
	ZeroGStarts [][]int
	ZeroGCounts []int
	ZeroGTags   []string

	// Delta map: two [start, end) selections over the ZeroG pairs.
	DeltaSelections [][]int
	DeltaGain       *float64
	DeltaReducer    string

	// PSD of the delta map
	PSDBins   int
	PSDDelta  float64
	PSDWindow string
}

func NewConfig() Config {
	return Config{
		NumWorkers:          4,
		InputScale:          1.0,
		KernelSize:          3,
		Sigma:               10,
		SigmaClipIters:      5,
		ThresholdPercentile: 0.1,
		FrameReducer:        "mean",
		BoundaryThreshold:   0.65,
		InsideTolerance:     0.9,
		MaxIterations:       1000,
		NZernike:            15,
		DeltaReducer:        "mean",
		PSDDelta:            1.0,
		PSDWindow:           "hann",
	}
}

func NewConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func LoadConfig(filename string) (Config, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}
	return NewConfigFromYaml(contents)
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Printf("Can't marshal config yaml: %v\n", err)
		return ""
	}
	return string(b)
}

func (c Config) GetFrameReducer() (emath.Reducer, error) { return emath.GetReducer(c.FrameReducer) }
func (c Config) GetDeltaReducer() (emath.Reducer, error) { return emath.GetReducer(c.DeltaReducer) }

// Validate checks the scalar parameters the stages depend on.
func (c Config) Validate() error {
	switch {
	case c.KernelSize <= 0 || c.KernelSize%2 == 0:
		return fmt.Errorf("kernelsize %d must be odd and positive", c.KernelSize)
	case c.Sigma <= 0:
		return fmt.Errorf("sigma %f must be positive", c.Sigma)
	case c.ThresholdPercentile < 0 || c.ThresholdPercentile > 100:
		return fmt.Errorf("thresholdpercentile %f out of [0,100]", c.ThresholdPercentile)
	case c.MaxIterations <= 0:
		return fmt.Errorf("maxiterations %d must be positive", c.MaxIterations)
	case c.Crop < 0 || c.Crop >= 1:
		return fmt.Errorf("crop %f out of [0,1)", c.Crop)
	case c.NZernike < 1:
		return fmt.Errorf("nzernike %d must be at least 1", c.NZernike)
	case len(c.DeltaSelections) != 0 && len(c.DeltaSelections) != 2:
		return fmt.Errorf("deltaselections needs exactly two [start, end) ranges, got %d", len(c.DeltaSelections))
	}
	if _, err := c.GetFrameReducer(); err != nil {
		return err
	}
	if _, err := c.GetDeltaReducer(); err != nil {
		return err
	}
	if _, err := GetWindow(c.PSDWindow, Ellipse{A: 1, B: 1}); err != nil {
		return err
	}
	return nil
}

// ZeroGPairs resolves the configured pairing into explicit pairs.
func (c Config) ZeroGPairs() ([]ZeroGPair, error) {
	gplus, gminus := c.ZeroGPlus, c.ZeroGMinus
	if len(c.ZeroGStarts) > 0 {
		var err error
		if gplus, gminus, err = GroupsFromStarts(c.ZeroGStarts, c.ZeroGCounts); err != nil {
			return nil, err
		}
	}
	tags := c.ZeroGTags
	if len(tags) == 0 {
		tags = make([]string, len(gplus))
	}
	return PairsFromGroups(gplus, gminus, tags)
}

// DeltaRanges returns the two configured delta selections, defaulting to
// "first pair" against "all the other pairs".
func (c Config) DeltaRanges(nPairs int) (IndexRange, IndexRange, error) {
	if len(c.DeltaSelections) == 0 {
		return IndexRange{0, 1}, IndexRange{1, nPairs}, nil
	} else if len(c.DeltaSelections) != 2 {
		return IndexRange{}, IndexRange{}, fmt.Errorf("%w: need two delta selections, got %d", ErrBadSelection, len(c.DeltaSelections))
	}
	var r [2]IndexRange
	for i, sel := range c.DeltaSelections {
		if len(sel) != 2 {
			return IndexRange{}, IndexRange{}, fmt.Errorf("%w: delta selection %v is not [start, end)", ErrBadSelection, sel)
		}
		r[i] = IndexRange{Start: sel[0], End: sel[1]}
	}
	return r[0], r[1], nil
}

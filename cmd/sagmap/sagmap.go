package main

import (
	"flag"
	"log"
	"os"

	"github.com/abworrall/sagmap/pkg/phasemap"
)

var (
	fVerbosity    int
	fWorkers      int
	fSigma        float64
	fReducer      string
	fNZernike     int
	fCrop         float64
	fSemiMajor    float64
	fSemiMinor    float64
	fRefSequence  int
	fPSDWindow    string
	fKeepGoing    bool
	fSummary      string
	fQuicklookDir string
)

func init() {
	defaults := phasemap.NewConfig()

	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.IntVar(&fWorkers, "workers", defaults.NumWorkers, "sequences processed in parallel")
	flag.Float64Var(&fSigma, "sigma", defaults.Sigma, "outlier clipping threshold, in standard deviations")
	flag.StringVar(&fReducer, "reducer", defaults.FrameReducer, "how to combine the frames of a sequence: mean, median")
	flag.IntVar(&fNZernike, "nzernike", defaults.NZernike, "number of polynomials to fit")
	flag.Float64Var(&fCrop, "crop", defaults.Crop, "fraction of the aperture to crop off the pupil")
	flag.Float64Var(&fSemiMajor, "a", 0, "pupil semi-major axis in pixels (0: mean of the fitted apertures)")
	flag.Float64Var(&fSemiMinor, "b", 0, "pupil semi-minor axis in pixels (0: mean of the fitted apertures)")
	flag.IntVar(&fRefSequence, "ref", 0, "sequence whose shape sets the reference frame, with -a and -b")
	flag.StringVar(&fPSDWindow, "psdwindow", defaults.PSDWindow, "window applied before the PSD: none, hann, ellipse")
	flag.BoolVar(&fKeepGoing, "k", false, "drop sequences that fail, rather than stopping")
	flag.StringVar(&fSummary, "summary", "sagmap.yaml", "where to write the results summary")
	flag.StringVar(&fQuicklookDir, "quicklooks", ".", "directory for quicklook PNG/HDR maps (written when -v > 0)")
	flag.Parse()

	log.Printf("sagmap starting\n")
}

// applyFlags overrides the loaded config with the flags given on the
// command line, leaving yaml settings alone otherwise.
func applyFlags(cfg *phasemap.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			cfg.Verbosity = fVerbosity
		case "workers":
			cfg.NumWorkers = fWorkers
		case "sigma":
			cfg.Sigma = fSigma
		case "reducer":
			cfg.FrameReducer = fReducer
		case "nzernike":
			cfg.NZernike = fNZernike
		case "crop":
			cfg.Crop = fCrop
		case "a":
			cfg.SemiMajor = fSemiMajor
		case "b":
			cfg.SemiMinor = fSemiMinor
		case "ref":
			cfg.RefSequence = fRefSequence
		case "psdwindow":
			cfg.PSDWindow = fPSDWindow
		case "k":
			cfg.ContinueOnError = fKeepGoing
		}
	})
}

func main() {
	if flag.NArg() == 0 {
		log.Printf("usage: sagmap [flags] <dirs and files: frames as <seq>_<num>[_tag].tif, config as .yaml>\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	c := phasemap.NewCampaign()
	if err := c.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}
	applyFlags(&c.Config)

	if c.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", c.Config.AsYaml())
		log.Printf("Loaded:-\n%s", c.String())
	}

	if err := c.RunCGVT(); err != nil {
		log.Fatal(err)
	}
	if err := c.RunZeroG(); err != nil {
		log.Fatal(err)
	}

	if err := c.WriteSummary(fSummary); err != nil {
		log.Fatal(err)
	}
	if c.Verbosity > 0 {
		if err := c.WriteQuicklooks(fQuicklookDir); err != nil {
			log.Fatal(err)
		}
	}
}

package phasemap

import (
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/abworrall/sagmap/pkg/emath"
)

// LoadFilesAndDirs reads frames named <seq>_<num>[_tag].tif, grouping
// them into sequences by <seq> and ordering each sequence by <num>. A
// .yaml file replaces the campaign config; within a directory the yaml
// files are read before any frame, so they apply to their siblings.
func (c *Campaign) LoadFilesAndDirs(args ...string) error {
	if err := c.loadPaths(args...); err != nil {
		return err
	}
	for _, s := range c.Sequences {
		s.sortFrames()
	}
	return nil
}

func (c *Campaign) loadPaths(args ...string) error {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := ioutil.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			sort.SliceStable(contents, func(i, j int) bool {
				return isYaml(contents[i].Name()) && !isYaml(contents[j].Name())
			})
			for _, content := range contents {
				if err := c.loadPaths(filepath.Join(arg, content.Name())); err != nil {
					return fmt.Errorf("load %s: %v", arg, err)
				}
			}

		default:
			if err := c.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %v", arg, err)
			}
		}
	}

	return nil
}

func isYaml(filename string) bool { return strings.ToLower(filepath.Ext(filename)) == ".yaml" }

func (c *Campaign) loadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {

	case ".tif", ".tiff":
		seq, num, _, err := ParseFrameName(filename)
		if err != nil {
			return err
		}
		frame, err := c.loadTIFF(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as TIFF failed: %v", filename, err)
		}

		s, exists := c.Sequences[seq]
		if !exists {
			s = NewSequence(seq, RawFrameStack{})
			c.AddSequence(s)
		}
		s.Raw.Frames = append(s.Raw.Frames, frame)
		s.Raw.Names = append(s.Raw.Names, filepath.Base(filename))
		s.frameNums = append(s.frameNums, num)

	case ".yaml":
		cfg, err := LoadConfig(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as config YAML failed: %v", filename, err)
		}
		c.Config = cfg
		log.Printf("Loaded base configuration from %s\n", filename)
	}

	return nil
}

// ParseFrameName splits a frame filename of the form <seq>_<num>[_tag].
func ParseFrameName(filename string) (seq, num int, tag string, err error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	bits := strings.SplitN(base, "_", 3)
	if len(bits) < 2 {
		return 0, 0, "", fmt.Errorf("frame name '%s' is not <seq>_<num>[_tag]", base)
	}
	if seq, err = strconv.Atoi(bits[0]); err != nil {
		return 0, 0, "", fmt.Errorf("frame name '%s': bad sequence: %v", base, err)
	}
	if num, err = strconv.Atoi(bits[1]); err != nil {
		return 0, 0, "", fmt.Errorf("frame name '%s': bad frame number: %v", base, err)
	}
	if len(bits) == 3 {
		tag = bits[2]
	}
	return seq, num, tag, nil
}

// OrientationFromName returns math.Pi for frames taken upside down, which
// carry "-g", "-1g" or "ng" in their tag.
func OrientationFromName(filename string) float64 {
	_, _, tag, err := ParseFrameName(filename)
	if err != nil {
		return 0
	}
	tag = strings.ToLower(tag)
	for _, marker := range []string{"-g", "-1g", "ng"} {
		if strings.Contains(tag, marker) {
			return math.Pi
		}
	}
	return 0
}

func (s *Sequence) sortFrames() {
	idx := make([]int, len(s.frameNums))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return s.frameNums[idx[i]] < s.frameNums[idx[j]] })

	frames := make(emath.MaskedStack, len(idx))
	names := make([]string, len(idx))
	nums := make([]int, len(idx))
	for i, k := range idx {
		frames[i], names[i], nums[i] = s.Raw.Frames[k], s.Raw.Names[k], s.frameNums[k]
	}
	s.Raw.Frames, s.Raw.Names, s.frameNums = frames, names, nums

	if len(names) > 0 {
		s.Raw.Orientation = OrientationFromName(names[0])
	}
}

// loadTIFF reads a 16-bit gray frame. Zero pixels carry no data; the
// rest become heights via (raw - offset) * scale. The scale and offset
// come from an ImageDescription of the form "scale=<f>, offset=<f>" when
// present, and from the config otherwise.
func (c *Campaign) loadTIFF(filename string) (*emath.MaskedGrid, error) {
	scale, offset := c.InputScale, c.InputOffset

	if reader, err := os.Open(filename); err != nil {
		return nil, fmt.Errorf("open+r exif '%s': %v", filename, err)

	} else {
		defer reader.Close()
		if ex, err := exif.Decode(reader); err != nil {
			if c.Verbosity > 1 {
				log.Printf("no exif in '%s': %v\n", filename, err)
			}
		} else if tag, err := ex.Get(exif.ImageDescription); err == nil {
			if desc, err := tag.StringVal(); err == nil {
				if scale, offset, err = parseDescription(desc, scale, offset); err != nil {
					return nil, fmt.Errorf("image description '%s': %v", filename, err)
				}
			}
		}
	}

	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()
	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	return frameFromImage(img, scale, offset), nil
}

func frameFromImage(img image.Image, scale, offset float64) *emath.MaskedGrid {
	bounds := img.Bounds()
	m := emath.NewMaskedGrid(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			raw := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			i, j := x-bounds.Min.X, y-bounds.Min.Y
			if raw == 0 {
				m.SetMasked(i, j, true)
				continue
			}
			m.Set(i, j, (float64(raw)-offset)*scale)
		}
	}
	return m
}

func parseDescription(desc string, scale, offset float64) (float64, float64, error) {
	for _, field := range strings.Split(desc, ",") {
		kv := strings.SplitN(strings.TrimSpace(field), "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return scale, offset, fmt.Errorf("%s: %v", kv[0], err)
		}
		switch strings.ToLower(kv[0]) {
		case "scale":
			scale = v
		case "offset":
			offset = v
		}
	}
	return scale, offset, nil
}

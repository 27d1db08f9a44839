// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package params reads the beamline parameter files which drive peak search and merging.
// Two encodings are supported: the line oriented "Key value value..." text format,
// and YAML with the same keys.
package params

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrMissingKey = errors.New("missing parameter")

// Intensity threshold for one diffraction ring
type RingThresh struct {
	RingNr    int     `yaml:"ringNr"`
	Threshold float64 `yaml:"threshold"`
}

// Omega value and step for one raw file, overriding the linear omega sweep
type FileOmega struct {
	Omega     float64 `yaml:"omega"`
	OmegaStep float64 `yaml:"omegaStep"`
}

// An inclusive omega interval in degrees
type OmegaRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Peak search and merge parameters. Lengths are in micrometers unless noted, angles in degrees.
type Params struct {
	FileName string `yaml:"-"`

	// Detector geometry
	NrPixels int     `yaml:"NrPixels"`
	Ycen     float64 `yaml:"Ycen"` // beam center, pixels
	Zcen     float64 `yaml:"Zcen"`
	Px       float64 `yaml:"px"`
	Lsd      float64 `yaml:"Lsd"`
	Tx       float64 `yaml:"tx"`
	Ty       float64 `yaml:"ty"`
	Tz       float64 `yaml:"tz"`
	P0       float64 `yaml:"p0"`
	P1       float64 `yaml:"p1"`
	P2       float64 `yaml:"p2"`
	P3       float64 `yaml:"p3"`
	RhoD     float64 `yaml:"RhoD"`

	Wavelength float64 `yaml:"Wavelength"`
	MaxRingRad float64 `yaml:"MaxRingRad"`

	// Ring selection
	Width       float64      `yaml:"Width"` // half width of a ring band
	RingThresh  []RingThresh `yaml:"RingThresh"`
	DoFullImage bool         `yaml:"DoFullImage"`

	// Image correction
	Dark                 string  `yaml:"Dark"`
	Flood                string  `yaml:"Flood"`
	BeamCurrent          float64 `yaml:"BeamCurrent"`
	ImTransOpt           []int   `yaml:"ImTransOpt"`
	BadPxIntensity       float64 `yaml:"BadPxIntensity"`
	MaskBadPx            bool    `yaml:"-"` // true if BadPxIntensity was set

	// Raw data layout
	HeadSize        int    `yaml:"HeadSize"`
	DataType        string `yaml:"DataType"`
	Ext             string `yaml:"Ext"`
	RawFolder       string `yaml:"RawFolder"`
	Folder          string `yaml:"Folder"`
	FileStem        string `yaml:"FileStem"`
	LayerNr         int    `yaml:"LayerNr"`
	Padding         int    `yaml:"Padding"`
	StartNr         int    `yaml:"StartNr"`
	EndNr           int    `yaml:"EndNr"`
	StartFileNr     int    `yaml:"StartFileNr"`
	NrFilesPerSweep int    `yaml:"NrFilesPerSweep"`

	// Omega sweep
	OmegaStep        float64      `yaml:"OmegaStep"`
	OmegaFirstFile   float64      `yaml:"OmegaFirstFile"`
	FrameNrOmeChange int          `yaml:"FrameNrOmeChange"`
	OmegaMissing     float64      `yaml:"OmegaMissing"`
	MisDir           float64      `yaml:"MisDir"`
	FileOmegaOmeStep []FileOmega  `yaml:"FileOmegaOmeStep"`
	OmegaRanges      []OmegaRange `yaml:"OmegaRange" json:"OmegaRange"`

	// Peak search
	UpperBoundThreshold float64 `yaml:"UpperBoundThreshold"`
	MaxNPeaks           int     `yaml:"MaxNPeaks"`
	MinNrPx             int     `yaml:"MinNrPx"`
	MaxNrPx             int     `yaml:"MaxNrPx"`
	MaxFitTime          float64 `yaml:"MaxFitTime"` // seconds

	// Merging of overlapping peaks
	OverlapLength      float64 `yaml:"OverlapLength"`
	UseMaximaPositions bool    `yaml:"UseMaximaPositions"`
}

// Returns parameters with the defaults of the beamline tools
func NewParamsDefault() *Params {
	return &Params{
		BeamCurrent:         1,
		HeadSize:            8192,
		DataType:            "uint16",
		Padding:             6,
		FrameNrOmeChange:    1,
		UpperBoundThreshold: math.Inf(1),
		MaxNPeaks:           400,
		MinNrPx:             1,
		MaxNrPx:             10000,
		MaxFitTime:          300,
		OverlapLength:       2,
	}
}

// Reads parameters from the given file. Files ending in .yaml or .yml are decoded as YAML,
// everything else as the line oriented text format.
func ReadFile(fileName string) (*Params, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("parameter file could not be read: %w", err)
	}
	defer f.Close()

	var p *Params
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		p, err = ReadYAML(f)
	default:
		p, err = Read(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	p.FileName = fileName
	return p, nil
}

// Decodes YAML parameters on top of the defaults
func ReadYAML(r io.Reader) (*Params, error) {
	p := NewParamsDefault()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(p); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error parsing yaml: %w", err)
	}
	if p.BadPxIntensity != 0 {
		p.MaskBadPx = true
	}
	return p, nil
}

// Unmarshal the type from JSON with default values for missing entries
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(*NewParamsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*p = Params(def)
	if p.BadPxIntensity != 0 {
		p.MaskBadPx = true
	}
	return nil
}

// Parses the line oriented text format. Lines start with a key followed by whitespace separated values.
// Unknown keys and comment lines are ignored, repeated keys like RingThresh accumulate.
func Read(r io.Reader) (*Params, error) {
	p := NewParamsDefault()
	scanner := bufio.NewScanner(r)
	lineNr := 0
	for scanner.Scan() {
		lineNr++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		setter, ok := setters[fields[0]]
		if !ok {
			continue
		}
		if err := setter(p, fields[1:]); err != nil {
			return nil, fmt.Errorf("line %d key %s: %w", lineNr, fields[0], err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

type setter func(p *Params, vals []string) error

var setters = map[string]setter{
	"NrPixels": intSetter(func(p *Params) *int { return &p.NrPixels }),
	"BC": func(p *Params, vals []string) error {
		return parseFloats(vals, &p.Ycen, &p.Zcen)
	},
	"px":         floatSetter(func(p *Params) *float64 { return &p.Px }),
	"Lsd":        floatSetter(func(p *Params) *float64 { return &p.Lsd }),
	"tx":         floatSetter(func(p *Params) *float64 { return &p.Tx }),
	"ty":         floatSetter(func(p *Params) *float64 { return &p.Ty }),
	"tz":         floatSetter(func(p *Params) *float64 { return &p.Tz }),
	"p0":         floatSetter(func(p *Params) *float64 { return &p.P0 }),
	"p1":         floatSetter(func(p *Params) *float64 { return &p.P1 }),
	"p2":         floatSetter(func(p *Params) *float64 { return &p.P2 }),
	"p3":         floatSetter(func(p *Params) *float64 { return &p.P3 }),
	"RhoD":       floatSetter(func(p *Params) *float64 { return &p.RhoD }),
	"Wavelength": floatSetter(func(p *Params) *float64 { return &p.Wavelength }),
	"MaxRingRad": floatSetter(func(p *Params) *float64 { return &p.MaxRingRad }),
	"Width":      floatSetter(func(p *Params) *float64 { return &p.Width }),
	"RingThresh": func(p *Params, vals []string) error {
		var rt RingThresh
		var nr float64
		if err := parseFloats(vals, &nr, &rt.Threshold); err != nil {
			return err
		}
		rt.RingNr = int(nr)
		p.RingThresh = append(p.RingThresh, rt)
		return nil
	},
	"DoFullImage": boolSetter(func(p *Params) *bool { return &p.DoFullImage }),
	"Dark":        stringSetter(func(p *Params) *string { return &p.Dark }),
	"Flood":       stringSetter(func(p *Params) *string { return &p.Flood }),
	"BeamCurrent": floatSetter(func(p *Params) *float64 { return &p.BeamCurrent }),
	"ImTransOpt": func(p *Params, vals []string) error {
		var v int
		if err := parseInts(vals, &v); err != nil {
			return err
		}
		p.ImTransOpt = append(p.ImTransOpt, v)
		return nil
	},
	"BadPxIntensity": func(p *Params, vals []string) error {
		p.MaskBadPx = true
		return parseFloats(vals, &p.BadPxIntensity)
	},
	"HeadSize":             intSetter(func(p *Params) *int { return &p.HeadSize }),
	"DataType":             stringSetter(func(p *Params) *string { return &p.DataType }),
	"Ext":                  stringSetter(func(p *Params) *string { return &p.Ext }),
	"RawFolder":            stringSetter(func(p *Params) *string { return &p.RawFolder }),
	"Folder":               stringSetter(func(p *Params) *string { return &p.Folder }),
	"FileStem":             stringSetter(func(p *Params) *string { return &p.FileStem }),
	"LayerNr":              intSetter(func(p *Params) *int { return &p.LayerNr }),
	"Padding":              intSetter(func(p *Params) *int { return &p.Padding }),
	"StartNr":              intSetter(func(p *Params) *int { return &p.StartNr }),
	"EndNr":                intSetter(func(p *Params) *int { return &p.EndNr }),
	"StartFileNr":          intSetter(func(p *Params) *int { return &p.StartFileNr }),
	"NrFilesPerSweep":      intSetter(func(p *Params) *int { return &p.NrFilesPerSweep }),
	"OmegaStep":            floatSetter(func(p *Params) *float64 { return &p.OmegaStep }),
	"OmegaFirstFile":       floatSetter(func(p *Params) *float64 { return &p.OmegaFirstFile }),
	"FrameOmeChange": func(p *Params, vals []string) error {
		var nr float64
		if err := parseFloats(vals, &nr, &p.OmegaMissing, &p.MisDir); err != nil {
			return err
		}
		p.FrameNrOmeChange = int(nr)
		return nil
	},
	"FileOmegaOmeStep": func(p *Params, vals []string) error {
		var fo FileOmega
		if err := parseFloats(vals, &fo.Omega, &fo.OmegaStep); err != nil {
			return err
		}
		p.FileOmegaOmeStep = append(p.FileOmegaOmeStep, fo)
		return nil
	},
	"OmegaRange": func(p *Params, vals []string) error {
		var or OmegaRange
		if err := parseFloats(vals, &or.Min, &or.Max); err != nil {
			return err
		}
		p.OmegaRanges = append(p.OmegaRanges, or)
		return nil
	},
	"UpperBoundThreshold": floatSetter(func(p *Params) *float64 { return &p.UpperBoundThreshold }),
	"MaxNPeaks":           intSetter(func(p *Params) *int { return &p.MaxNPeaks }),
	"MinNrPx":             intSetter(func(p *Params) *int { return &p.MinNrPx }),
	"MaxNrPx":             intSetter(func(p *Params) *int { return &p.MaxNrPx }),
	"MaxFitTime":          floatSetter(func(p *Params) *float64 { return &p.MaxFitTime }),
	"OverlapLength":       floatSetter(func(p *Params) *float64 { return &p.OverlapLength }),
	"UseMaximaPositions":  boolSetter(func(p *Params) *bool { return &p.UseMaximaPositions }),
}

func floatSetter(field func(p *Params) *float64) setter {
	return func(p *Params, vals []string) error { return parseFloats(vals, field(p)) }
}

func intSetter(field func(p *Params) *int) setter {
	return func(p *Params, vals []string) error { return parseInts(vals, field(p)) }
}

func boolSetter(field func(p *Params) *bool) setter {
	return func(p *Params, vals []string) error {
		var v int
		if err := parseInts(vals, &v); err != nil {
			return err
		}
		*field(p) = v != 0
		return nil
	}
}

func stringSetter(field func(p *Params) *string) setter {
	return func(p *Params, vals []string) error {
		if len(vals) < 1 {
			return fmt.Errorf("expected 1 value, got 0")
		}
		*field(p) = vals[0]
		return nil
	}
}

func parseFloats(vals []string, dst ...*float64) error {
	if len(vals) < len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(vals))
	}
	for i, d := range dst {
		v, err := strconv.ParseFloat(vals[i], 64)
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

func parseInts(vals []string, dst ...*int) error {
	if len(vals) < len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(vals))
	}
	for i, d := range dst {
		v, err := strconv.Atoi(vals[i])
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

// Checks the parameters needed for a peak search
func (p *Params) Validate() error {
	if p.NrPixels <= 0 {
		return fmt.Errorf("%w: NrPixels must be positive, got %d", ErrMissingKey, p.NrPixels)
	}
	for _, t := range p.ImTransOpt {
		if t < 0 || t > 3 {
			return fmt.Errorf("ImTransOpt can only be 0, 1, 2 or 3, got %d", t)
		}
	}
	if len(p.RingThresh) == 0 {
		return fmt.Errorf("%w: at least one RingThresh is required", ErrMissingKey)
	}
	if !p.DoFullImage && p.Px <= 0 {
		return fmt.Errorf("%w: px must be positive, got %g", ErrMissingKey, p.Px)
	}
	if !p.DoFullImage && p.Lsd <= 0 {
		return fmt.Errorf("%w: Lsd must be positive, got %g", ErrMissingKey, p.Lsd)
	}
	if p.MaxNPeaks < 1 {
		return fmt.Errorf("MaxNPeaks must be at least 1, got %d", p.MaxNPeaks)
	}
	return nil
}

// Ring band half width in pixels
func (p *Params) WidthPx() float64 {
	if p.Px == 0 {
		return 0
	}
	return p.Width / p.Px
}

// Maximum runtime of a single region fit
func (p *Params) FitTimeout() time.Duration {
	return time.Duration(p.MaxFitTime * float64(time.Second))
}

// Name of the raw file with the given number
func (p *Params) RawFileName(fileNr int) string {
	return filepath.Join(p.RawFolder, fmt.Sprintf("%s_%0*d%s", p.FileStem, p.Padding, fileNr, p.Ext))
}

// Stem of output files, combining file stem and layer number
func (p *Params) OutputStem() string {
	return fmt.Sprintf("%s_%d", p.FileStem, p.LayerNr)
}

// Folder for the per-frame peak tables
func (p *Params) TempFolder() string {
	return filepath.Join(p.Folder, "Temp")
}

// Name of the peak table for the given frame number
func (p *Params) PeakTableName(frameNr int) string {
	return filepath.Join(p.TempFolder(), fmt.Sprintf("%s_%0*d_PS.csv", p.OutputStem(), p.Padding, frameNr))
}

// Name of the merged spot table
func (p *Params) MergedTableName() string {
	return filepath.Join(p.Folder, "PeakSearch", p.OutputStem(),
		fmt.Sprintf("Result_StartNr_%d_EndNr_%d.csv", p.StartNr, p.EndNr))
}

// Returns true if omega lies within any of the configured keep ranges
func (p *Params) KeepOmega(omega float64) bool {
	for _, r := range p.OmegaRanges {
		if omega >= r.Min && omega <= r.Max {
			return true
		}
	}
	return false
}

// Omega of the given frame, where frame numbers count from 0 across all raw files.
// framesPerFile is needed to locate the frame within a FileOmegaOmeStep entry.
func (p *Params) Omega(frameNr, framesPerFile int) float64 {
	if len(p.FileOmegaOmeStep) > 0 && framesPerFile > 0 {
		fileIdx := frameNr / framesPerFile
		if fileIdx >= len(p.FileOmegaOmeStep) {
			fileIdx = len(p.FileOmegaOmeStep) - 1
		}
		fo := p.FileOmegaOmeStep[fileIdx]
		return fo.Omega + float64(frameNr%framesPerFile)*fo.OmegaStep
	}
	k := frameNr - p.StartNr + 1
	omega := p.OmegaFirstFile + float64(k)*p.OmegaStep
	if p.FrameNrOmeChange > 0 && k >= p.FrameNrOmeChange {
		nAdditions := k / p.FrameNrOmeChange
		omega += p.MisDir * p.OmegaMissing * float64(nAdditions)
	}
	return omega
}

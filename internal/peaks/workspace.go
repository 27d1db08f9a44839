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

// Package peaks segments corrected detector frames into connected regions, seeds them with
// regional maxima, and fits overlapping pseudo-Voigt peaks in polar coordinates.
package peaks

import (
	"math"

	"github.com/mlnoga/hedmpeaks/internal/detector"
)

// Settings for peak search within a frame
type Config struct {
	Ycen, Zcen          float64 // beam center in processing layout, pixels
	MinNrPx             int     // regions with at most this many pixels are skipped
	MaxNrPx             int     // regions with at least this many pixels are skipped
	MaxNPeaks           int     // seeds per region are truncated to this many
	UpperBoundThreshold float64 // regions with a pixel at or above this value are saturated and skipped
	Fitter              *Fitter
}

// One fitted peak, with the diagnostics written to the peak table
type Spot struct {
	IntegratedIntensity float64
	YCen, ZCen          float64 // fitted center, pixels
	IMax                float64
	Radius              float64
	Eta                 float64
	SigmaR, SigmaEta    float64
	NrPx                int // pixels attributed to this peak
	NrPxTot             int // pixels of the region
	NPeaks              int // peaks fitted jointly in the region
	MaxY, MaxZ          int // seed pixel
	DiffY, DiffZ        float64
	RawIMax             float64 // seed intensity
	ReturnCode          int
}

// Counts of regions per frame, by outcome
type RegionStats struct {
	Regions   int
	Fitted    int
	Small     int
	Large     int
	Saturated int
	Empty     int
	Peaks     int
}

// Per-worker buffers for processing frames of one size. Allocate once, reuse for every frame.
type Workspace struct {
	Cal *Calibration
	Cfg *Config

	Raw     []float64 // raw frame in detector layout, filled by the caller
	Image   []float64 // corrected frame in processing layout
	scratch []float64
	Labeler *Labeler
	Regions []Region // regions of the last frame
	Stats   RegionStats

	seeds  []Seed
	pixels PolarPixels
	fit    FitWork
	intInt []float64
	nrPx   []int
	spots  []Spot
}

func NewWorkspace(cal *Calibration, cfg *Config) *Workspace {
	n2 := cal.N * cal.N
	return &Workspace{
		Cal:     cal,
		Cfg:     cfg,
		Raw:     make([]float64, n2),
		Image:   make([]float64, n2),
		scratch: make([]float64, n2),
		Labeler: NewLabeler(cal.N),
	}
}

// Approximate memory footprint of a workspace for n x n frames, in bytes
func WorkspaceBytes(n int) int64 {
	n2 := int64(n) * int64(n)
	return n2 * (3*8 + 3*4)
}

// Corrects the raw frame in ws.Raw, and finds and fits all peaks. Spots are returned
// in region discovery order, then seed order within a region. They are valid until the next call.
func (ws *Workspace) FindPeaks() []Spot {
	ws.Cal.Correct(ws.Raw, ws.Image, ws.scratch)
	return ws.FindPeaksCorrected()
}

// Finds and fits all peaks in the already corrected frame in ws.Image
func (ws *Workspace) FindPeaksCorrected() []Spot {
	n, cfg := ws.Cal.N, ws.Cfg
	ws.Regions = ws.Labeler.Label(ws.Image)
	ws.Stats = RegionStats{Regions: len(ws.Regions)}
	ws.spots = ws.spots[:0]

	for _, reg := range ws.Regions {
		nrPx := len(reg.Pixels)
		var saturated bool
		ws.seeds, saturated = FindRegionalMaxima(ws.Image, ws.Labeler.Labels, n, reg, cfg.UpperBoundThreshold, ws.seeds)
		if nrPx <= cfg.MinNrPx {
			ws.Stats.Small++
			continue
		}
		if nrPx >= cfg.MaxNrPx {
			ws.Stats.Large++
			continue
		}
		if saturated {
			ws.Stats.Saturated++
			continue
		}
		ws.seeds = TruncateSeeds(ws.seeds, cfg.MaxNPeaks)
		if !positiveSeeds(ws.seeds) {
			ws.Stats.Empty++
			continue
		}

		thresh := ws.Cal.GoodCoords[reg.Pixels[0]]
		ws.pixels.Set(ws.Image, n, reg.Pixels, cfg.Ycen, cfg.Zcen)
		res, err := cfg.Fitter.Fit(&ws.pixels, ws.seeds, cfg.Ycen, cfg.Zcen, thresh, &ws.fit)
		if err != nil {
			ws.Stats.Empty++
			continue
		}
		ws.intInt, ws.nrPx = IntegratedIntensities(&res.Model, &ws.pixels, ws.intInt, ws.nrPx)
		ws.appendSpots(res, nrPx)
		ws.Stats.Fitted++
		ws.Stats.Peaks += len(res.Model.Peaks)
	}
	return ws.spots
}

func (ws *Workspace) appendSpots(res *FitResult, nrPxTot int) {
	cfg := ws.Cfg
	for i := range res.Model.Peaks {
		p, s := &res.Model.Peaks[i], ws.seeds[i]
		y, z := detector.YZ4mREta(p.R, p.Eta)
		yCen, zCen := y+cfg.Ycen, z+cfg.Zcen
		ws.spots = append(ws.spots, Spot{
			IntegratedIntensity: ws.intInt[i],
			YCen:                yCen,
			ZCen:                zCen,
			IMax:                p.IMax,
			Radius:              p.R,
			Eta:                 p.Eta,
			SigmaR:              p.SigmaR(),
			SigmaEta:            p.SigmaEta(),
			NrPx:                ws.nrPx[i],
			NrPxTot:             nrPxTot,
			NPeaks:              len(res.Model.Peaks),
			MaxY:                s.Row,
			MaxZ:                s.Col,
			DiffY:               float64(s.Row) - yCen,
			DiffZ:               float64(s.Col) - zCen,
			RawIMax:             s.Intensity,
			ReturnCode:          res.ReturnCode,
		})
	}
}

// All seeds must be positive for the intensity bounds to make sense
func positiveSeeds(seeds []Seed) bool {
	if len(seeds) == 0 {
		return false
	}
	for _, s := range seeds {
		if !(s.Intensity > 0) || math.IsInf(s.Intensity, 0) {
			return false
		}
	}
	return true
}

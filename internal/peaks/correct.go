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

package peaks

import (
	"fmt"

	"github.com/mlnoga/hedmpeaks/internal/detector"
)

// Read-only calibration data for image correction, shared by all workers.
// Dark, Flood and GoodCoords are in processing layout.
type Calibration struct {
	N           int
	Dark        []float64
	Flood       []float64
	GoodCoords  []float64 // per pixel threshold, 0 outside all ring bands
	BeamCurrent float64
	TransOpts   []detector.TransOpt
}

// Checks buffer sizes
func (c *Calibration) Validate() error {
	n2 := c.N * c.N
	if len(c.Dark) != n2 || len(c.Flood) != n2 || len(c.GoodCoords) != n2 {
		return fmt.Errorf("calibration buffers have %d/%d/%d pixels, want %d",
			len(c.Dark), len(c.Flood), len(c.GoodCoords), n2)
	}
	return nil
}

// Corrects a raw frame in detector layout. Applies the image transforms to raw in place using
// scratch, then writes the transposed, dark and flood corrected, beam current scaled and
// thresholded image to out. Pixels outside the ring bands or below threshold become 0.
func (c *Calibration) Correct(raw, out, scratch []float64) {
	n := c.N
	detector.Transform(raw, n, c.TransOpts, scratch)
	detector.Transpose(raw, n, out)
	for i, v := range out {
		thresh := c.GoodCoords[i]
		if thresh == 0 {
			out[i] = 0
			continue
		}
		v = (v - c.Dark[i]) / c.Flood[i] * c.BeamCurrent
		if v < thresh {
			v = 0
		}
		out[i] = v
	}
}

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

package params

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mlnoga/hedmpeaks/internal/detector"
)

// Column indices in hkls.csv
const (
	hklColRingNr = 4
	hklColRadius = 10
)

// Reads ring radii in micrometers by ring number from an hkls.csv table.
// The first line is a header. Several hkl families share a ring, the last one read wins.
func ReadRingRadii(r io.Reader) (map[int]float64, error) {
	radii := map[int]float64{}
	scanner := bufio.NewScanner(r)
	lineNr := 0
	for scanner.Scan() {
		lineNr++
		if lineNr == 1 {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) <= hklColRadius {
			return nil, fmt.Errorf("hkls line %d: expected at least %d columns, got %d", lineNr, hklColRadius+1, len(fields))
		}
		nr, err := strconv.Atoi(fields[hklColRingNr])
		if err != nil {
			return nil, fmt.Errorf("hkls line %d: %w", lineNr, err)
		}
		rad, err := strconv.ParseFloat(fields[hklColRadius], 64)
		if err != nil {
			return nil, fmt.Errorf("hkls line %d: %w", lineNr, err)
		}
		radii[nr] = rad
	}
	return radii, scanner.Err()
}

// Name of the ring table in the output folder
func (p *Params) HKLFileName() string {
	return filepath.Join(p.Folder, "hkls.csv")
}

// Joins the configured ring thresholds with radii from hkls.csv.
// With DoFullImage set, radii are not needed and the file is not read.
func (p *Params) Rings() ([]detector.Ring, error) {
	rings := make([]detector.Ring, len(p.RingThresh))
	for i, rt := range p.RingThresh {
		rings[i] = detector.Ring{Nr: rt.RingNr, Threshold: rt.Threshold}
	}
	if p.DoFullImage {
		return rings, nil
	}

	f, err := os.Open(p.HKLFileName())
	if err != nil {
		return nil, fmt.Errorf("hkl file could not be read: %w", err)
	}
	defer f.Close()
	radii, err := ReadRingRadii(f)
	if err != nil {
		return nil, err
	}
	for i := range rings {
		rad, ok := radii[rings[i].Nr]
		if !ok {
			return nil, fmt.Errorf("%w: ring %d not found in %s", ErrMissingKey, rings[i].Nr, p.HKLFileName())
		}
		rings[i].RadiusPx = rad / p.Px
	}
	return rings, nil
}

// Detector geometry from the parameters
func (p *Params) Geometry() *detector.Geometry {
	return &detector.Geometry{
		NrPixels: p.NrPixels,
		Ycen:     p.Ycen, Zcen: p.Zcen,
		Px: p.Px, Lsd: p.Lsd,
		Tx: p.Tx, Ty: p.Ty, Tz: p.Tz,
		P0: p.P0, P1: p.P1, P2: p.P2, P3: p.P3,
		RhoD: p.RhoD,
	}
}

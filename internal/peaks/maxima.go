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

// A local intensity maximum within a region, seeding one peak of the fit
type Seed struct {
	Row, Col  int
	Intensity float64
}

// Finds the regional maxima of a region: pixels with no 8-neighbor in the same region of strictly
// greater intensity. Equal neighbors do not disqualify each other, so plateaus yield several seeds.
// A fully flat region, or one without any maximum, gets the pixel at the middle of the member list
// as its only seed. Saturated is set if any member pixel reaches satThresh. Seeds reuse dst.
func FindRegionalMaxima(img []float64, labels []int32, n int, reg Region, satThresh float64, dst []Seed) (seeds []Seed, saturated bool) {
	seeds = dst[:0]
	flat := true
	for _, p := range reg.Pixels {
		v := img[p]
		if v >= satThresh {
			saturated = true
		}
		if v != img[reg.Pixels[0]] {
			flat = false
		}
		row, col := int(p)/n, int(p)%n
		isMax := true
		for d := 0; d < 8; d++ {
			r, c := row+nbRow[d], col+nbCol[d]
			if r < 0 || r >= n || c < 0 || c >= n {
				continue
			}
			q := r*n + c
			if labels[q] == reg.ID && img[q] > v {
				isMax = false
				break
			}
		}
		if isMax {
			seeds = append(seeds, Seed{Row: row, Col: col, Intensity: v})
		}
	}
	if (flat || len(seeds) == 0) && len(reg.Pixels) > 0 {
		p := reg.Pixels[len(reg.Pixels)/2]
		seeds = append(seeds[:0], Seed{Row: int(p) / n, Col: int(p) % n, Intensity: img[p]})
	}
	return seeds, saturated
}

// Keeps the maxNPeaks seeds of highest intensity, in no particular order. Works in place.
func TruncateSeeds(seeds []Seed, maxNPeaks int) []Seed {
	if maxNPeaks < 0 || len(seeds) <= maxNPeaks {
		return seeds
	}
	selectTopSeeds(seeds, maxNPeaks)
	return seeds[:maxNPeaks]
}

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
	"testing"

	"github.com/valyala/fastrand"
)

func maskFromRows(rows ...string) (mask []bool, n int) {
	n = len(rows)
	mask = make([]bool, n*n)
	for r, row := range rows {
		for c, ch := range row {
			mask[r*n+c] = ch == '#'
		}
	}
	return mask, n
}

func TestLabelDiagonalChain(t *testing.T) {
	mask, n := maskFromRows(
		"#..",
		".#.",
		"..#",
	)
	regions := NewLabeler(n).LabelMask(mask)
	if len(regions) != 1 {
		t.Fatalf("regions=%d; want 1", len(regions))
	}
	if len(regions[0].Pixels) != 3 {
		t.Errorf("pixels=%d; want 3", len(regions[0].Pixels))
	}
}

func TestLabelSeparated(t *testing.T) {
	mask, n := maskFromRows(
		"#.#..",
		"#.#..",
		".....",
		"...##",
		"#..##",
	)
	l := NewLabeler(n)
	regions := l.LabelMask(mask)
	if len(regions) != 4 {
		t.Fatalf("regions=%d; want 4", len(regions))
	}
	wantSizes := []int{2, 2, 4, 1}
	for i, r := range regions {
		if r.ID != int32(i+1) {
			t.Errorf("region %d ID=%d; want %d", i, r.ID, i+1)
		}
		if len(r.Pixels) != wantSizes[i] {
			t.Errorf("region %d size=%d; want %d", i, len(r.Pixels), wantSizes[i])
		}
	}
	if l.Labels[0] != 1 || l.Labels[2] != 2 || l.Labels[4*n] != 4 || l.Labels[1] != 0 {
		t.Errorf("labels=%v", l.Labels)
	}
}

func TestLabelLargeRegion(t *testing.T) {
	// a single region covering the whole frame, deeper than any call stack would allow
	const n = 1024
	img := make([]float64, n*n)
	for i := range img {
		img[i] = 1
	}
	regions := NewLabeler(n).Label(img)
	if len(regions) != 1 || len(regions[0].Pixels) != n*n {
		t.Fatalf("regions=%d; want 1 with %d pixels", len(regions), n*n)
	}
}

func TestLabelPartition(t *testing.T) {
	rng := fastrand.RNG{}
	const n = 48
	l := NewLabeler(n)
	mask := make([]bool, n*n)
	for iter := 0; iter < 50; iter++ {
		density := 1 + rng.Uint32n(8)
		for i := range mask {
			mask[i] = rng.Uint32n(10) < density
		}
		regions := l.LabelMask(mask)

		seen := make([]int32, n*n)
		for _, r := range regions {
			for _, p := range r.Pixels {
				if !mask[p] {
					t.Fatalf("iter %d: pixel %d in region %d is not set", iter, p, r.ID)
				}
				if seen[p] != 0 {
					t.Fatalf("iter %d: pixel %d in regions %d and %d", iter, p, seen[p], r.ID)
				}
				seen[p] = r.ID
			}
		}
		for i, m := range mask {
			if m && seen[i] == 0 {
				t.Fatalf("iter %d: set pixel %d in no region", iter, i)
			}
		}
		// set 8-neighbors share a region
		for i, m := range mask {
			if !m {
				continue
			}
			row, col := i/n, i%n
			for d := 0; d < 8; d++ {
				r, c := row+nbRow[d], col+nbCol[d]
				if r < 0 || r >= n || c < 0 || c >= n || !mask[r*n+c] {
					continue
				}
				if seen[r*n+c] != seen[i] {
					t.Fatalf("iter %d: neighbors %d and %d in regions %d and %d", iter, i, r*n+c, seen[i], seen[r*n+c])
				}
			}
		}
	}
}

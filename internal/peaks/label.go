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

// Offsets of the 8-neighborhood: E, S, W, N, then the diagonals
var (
	nbRow = [8]int{+1, 0, -1, 0, +1, -1, +1, -1}
	nbCol = [8]int{0, +1, 0, -1, +1, +1, -1, -1}
)

// A connected set of pixels. Pixels are indices row*n+col in flood fill order
type Region struct {
	ID     int32
	Pixels []int32
}

// Labels 8-connected components of an n x n image. Buffers are allocated once and reused
// across frames; flood fill uses an explicit stack, so region size is bounded by memory only.
type Labeler struct {
	N      int
	Labels []int32 // 0 for background, else region ID starting at 1

	stack   []int32
	arena   []int32 // member pixels of all regions, back to back
	regions []Region
}

func NewLabeler(n int) *Labeler {
	return &Labeler{
		N:      n,
		Labels: make([]int32, n*n),
		stack:  make([]int32, 0, 4*n),
		arena:  make([]int32, 0, n*n),
	}
}

// Labels the nonzero pixels of img. The returned regions are valid until the next call.
func (l *Labeler) Label(img []float64) []Region {
	return l.label(func(i int) bool { return img[i] != 0 })
}

// Labels the true pixels of mask. The returned regions are valid until the next call.
func (l *Labeler) LabelMask(mask []bool) []Region {
	return l.label(func(i int) bool { return mask[i] })
}

func (l *Labeler) label(set func(i int) bool) []Region {
	n := l.N
	for i := range l.Labels {
		l.Labels[i] = 0
	}
	l.arena = l.arena[:0]
	l.regions = l.regions[:0]

	label := int32(0)
	for i := 0; i < n*n; i++ {
		if l.Labels[i] != 0 || !set(i) {
			continue
		}
		label++
		start := len(l.arena)
		l.fill(int32(i), label, set)
		l.regions = append(l.regions, Region{ID: label, Pixels: l.arena[start:len(l.arena):len(l.arena)]})
	}
	return l.regions
}

// Depth first flood fill from seed, assigning label to all reachable set pixels
func (l *Labeler) fill(seed int32, label int32, set func(i int) bool) {
	n := l.N
	l.Labels[seed] = label
	l.stack = append(l.stack[:0], seed)
	for len(l.stack) > 0 {
		p := l.stack[len(l.stack)-1]
		l.stack = l.stack[:len(l.stack)-1]
		l.arena = append(l.arena, p)

		row, col := int(p)/n, int(p)%n
		for d := 0; d < 8; d++ {
			r, c := row+nbRow[d], col+nbCol[d]
			if r < 0 || r >= n || c < 0 || c >= n {
				continue
			}
			q := r*n + c
			if l.Labels[q] != 0 || !set(q) {
				continue
			}
			l.Labels[q] = label
			l.stack = append(l.stack, int32(q))
		}
	}
}

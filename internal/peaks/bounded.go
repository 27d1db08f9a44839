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

import "math"

// Box constraints for an unconstrained minimizer. A bounded parameter x in [lo,hi] is
// expressed through a free variable u as x = lo + (hi-lo)*(sin(u)+1)/2.
type Bounds struct {
	Lo, Hi []float64
}

// Resizes the bounds for n parameters
func (b *Bounds) Resize(n int) {
	if cap(b.Lo) < n {
		b.Lo, b.Hi = make([]float64, n), make([]float64, n)
	}
	b.Lo, b.Hi = b.Lo[:n], b.Hi[:n]
}

// Sets the bounds of parameter i. Reversed bounds are swapped
func (b *Bounds) Set(i int, lo, hi float64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	b.Lo[i], b.Hi[i] = lo, hi
}

// Clamps x into the bounds, in place
func (b *Bounds) Clamp(x []float64) {
	for i := range x {
		x[i] = math.Max(b.Lo[i], math.Min(b.Hi[i], x[i]))
	}
}

// Maps free variables u to bounded parameters x
func (b *Bounds) ToBounded(u, x []float64) {
	for i := range u {
		lo, hi := b.Lo[i], b.Hi[i]
		x[i] = lo + (hi-lo)*(math.Sin(u[i])+1)/2
	}
}

// Maps bounded parameters x to free variables u. Values outside the bounds are clamped first
func (b *Bounds) ToFree(x, u []float64) {
	for i := range x {
		lo, hi := b.Lo[i], b.Hi[i]
		if hi == lo {
			u[i] = 0
			continue
		}
		s := 2*(x[i]-lo)/(hi-lo) - 1
		u[i] = math.Asin(math.Max(-1, math.Min(1, s)))
	}
}

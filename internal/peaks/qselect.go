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

// Ranking key of a seed. NaN intensities rank lowest
func seedKey(s *Seed) float64 {
	if math.IsNaN(s.Intensity) {
		return math.Inf(-1)
	}
	return s.Intensity
}

// Moves the k seeds with the highest intensity to the front of a, in no particular order.
// Quickselect with Hoare partitioning around the middle element.
func selectTopSeeds(a []Seed, k int) {
	left, right := 0, len(a)-1
	for left < right {
		mid := (left + right) >> 1
		pivot := seedKey(&a[mid])
		l, r := left-1, right+1
		for {
			for {
				l++
				if seedKey(&a[l]) <= pivot {
					break
				}
			}
			for {
				r--
				if seedKey(&a[r]) >= pivot {
					break
				}
			}
			if l >= r {
				break
			} // index in r
			a[l], a[r] = a[r], a[l]
		}

		offset := r - left + 1
		if k <= offset {
			right = r
		} else {
			left = r + 1
			k = k - offset
		}
	}
}

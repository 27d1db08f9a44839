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

package detector

import "fmt"

// Geometric image transform, as configured with ImTransOpt
type TransOpt int

const (
	TransNone      TransOpt = 0
	TransFlipLR    TransOpt = 1 // mirror columns
	TransFlipTB    TransOpt = 2 // mirror rows
	TransTranspose TransOpt = 3
)

func (t TransOpt) String() string {
	switch t {
	case TransNone:
		return "none"
	case TransFlipLR:
		return "flipLR"
	case TransFlipTB:
		return "flipTB"
	case TransTranspose:
		return "transpose"
	}
	return fmt.Sprintf("TransOpt(%d)", int(t))
}

// Converts configured integer options into transforms
func TransOpts(opts []int) ([]TransOpt, error) {
	res := make([]TransOpt, len(opts))
	for i, o := range opts {
		if o < 0 || o > 3 {
			return nil, fmt.Errorf("unknown image transform %d", o)
		}
		res[i] = TransOpt(o)
	}
	return res, nil
}

// Applies the given transforms in order to the square n x n image in data, in place.
// Scratch must hold n*n elements.
func Transform(data []float64, n int, opts []TransOpt, scratch []float64) {
	for _, o := range opts {
		switch o {
		case TransFlipLR:
			for row := 0; row < n; row++ {
				line := data[row*n : (row+1)*n]
				for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
					line[l], line[r] = line[r], line[l]
				}
			}
		case TransFlipTB:
			for top, bot := 0, n-1; top < bot; top, bot = top+1, bot-1 {
				t, b := data[top*n:(top+1)*n], data[bot*n:(bot+1)*n]
				for col := range t {
					t[col], b[col] = b[col], t[col]
				}
			}
		case TransTranspose:
			Transpose(data, n, scratch)
			copy(data, scratch[:n*n])
		}
	}
}

// Writes the transpose of the square n x n image in src to dest
func Transpose(src []float64, n int, dest []float64) {
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			dest[row*n+col] = src[col*n+row]
		}
	}
}

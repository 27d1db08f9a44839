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

// Integrated intensity and pixel count of each fitted peak. A pixel is attributed to a peak
// if the peak alone exceeds the background there, and then contributes background plus peak value.
// Overlapping peaks may each claim the same pixel.
func IntegratedIntensities(m *Model, pp *PolarPixels, intInt []float64, nrPx []int) ([]float64, []int) {
	intInt, nrPx = intInt[:0], nrPx[:0]
	for j := range m.Peaks {
		p := &m.Peaks[j]
		sum, count := 0.0, 0
		for i := range pp.R {
			v := p.Value(pp.R[i], pp.Eta[i])
			if v > m.BG {
				sum += m.BG + v
				count++
			}
		}
		intInt = append(intInt, sum)
		nrPx = append(nrPx, count)
	}
	return intInt, nrPx
}

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

// Number of fit parameters per peak
const ParamsPerPeak = 8

// Offsets of the per-peak parameters in a fit vector, after the leading background
const (
	offIMax = iota
	offR
	offEta
	offMu
	offSigmaGR
	offSigmaLR
	offSigmaGEta
	offSigmaLEta
)

// Pseudo-Voigt peak in polar detector coordinates. Radii in pixels, angles in degrees
type Peak struct {
	IMax      float64
	R         float64
	Eta       float64
	Mu        float64 // Lorentzian fraction
	SigmaGR   float64
	SigmaLR   float64
	SigmaGEta float64
	SigmaLEta float64
}

// Peak intensity at the given position, without background.
// The Lorentzian is a product of the radial and azimuthal terms.
func (p *Peak) Value(r, eta float64) float64 {
	dr, de := r-p.R, eta-p.Eta
	r2, e2 := dr*dr, de*de
	l := 1 / ((1 + r2/(p.SigmaLR*p.SigmaLR)) * (1 + e2/(p.SigmaLEta*p.SigmaLEta)))
	g := math.Exp(-0.5*r2/(p.SigmaGR*p.SigmaGR) - 0.5*e2/(p.SigmaGEta*p.SigmaGEta))
	return p.IMax * (p.Mu*l + (1-p.Mu)*g)
}

// Larger of the Gaussian and Lorentzian radial widths
func (p *Peak) SigmaR() float64 { return math.Max(p.SigmaGR, p.SigmaLR) }

// Larger of the Gaussian and Lorentzian azimuthal widths
func (p *Peak) SigmaEta() float64 { return math.Max(p.SigmaGEta, p.SigmaLEta) }

// Joint model of all peaks in a region, over a shared background
type Model struct {
	BG    float64
	Peaks []Peak
}

// Model intensity at the given position
func (m *Model) Value(r, eta float64) float64 {
	v := m.BG
	for i := range m.Peaks {
		v += m.Peaks[i].Value(r, eta)
	}
	return v
}

// Number of parameters of a model with n peaks
func NumParams(nPeaks int) int { return 1 + ParamsPerPeak*nPeaks }

// Packs the model into a parameter vector [BG, (IMax, R, Eta, Mu, SigmaGR, SigmaLR, SigmaGEta, SigmaLEta)...]
func (m *Model) Vector(x []float64) []float64 {
	x = append(x[:0], m.BG)
	for _, p := range m.Peaks {
		x = append(x, p.IMax, p.R, p.Eta, p.Mu, p.SigmaGR, p.SigmaLR, p.SigmaGEta, p.SigmaLEta)
	}
	return x
}

// Unpacks a parameter vector into the model, reusing its peak slice
func (m *Model) SetVector(x []float64) {
	n := (len(x) - 1) / ParamsPerPeak
	m.BG = x[0]
	if cap(m.Peaks) < n {
		m.Peaks = make([]Peak, n)
	}
	m.Peaks = m.Peaks[:n]
	for i := range m.Peaks {
		o := x[1+i*ParamsPerPeak : 1+(i+1)*ParamsPerPeak]
		m.Peaks[i] = Peak{
			IMax: o[offIMax], R: o[offR], Eta: o[offEta], Mu: o[offMu],
			SigmaGR: o[offSigmaGR], SigmaLR: o[offSigmaLR],
			SigmaGEta: o[offSigmaGEta], SigmaLEta: o[offSigmaLEta],
		}
	}
}

// Sum of squared differences between model and observed intensities z at positions (rs, etas).
// Evaluates directly on the parameter vector x.
func SumSquaredResiduals(x, rs, etas, z []float64) float64 {
	bg := x[0]
	nPeaks := (len(x) - 1) / ParamsPerPeak
	sum := 0.0
	for i := range z {
		r, eta := rs[i], etas[i]
		v := bg
		for j := 0; j < nPeaks; j++ {
			o := x[1+j*ParamsPerPeak : 1+(j+1)*ParamsPerPeak]
			dr, de := r-o[offR], eta-o[offEta]
			r2, e2 := dr*dr, de*de
			sLR, sLE := o[offSigmaLR], o[offSigmaLEta]
			sGR, sGE := o[offSigmaGR], o[offSigmaGEta]
			l := 1 / ((1 + r2/(sLR*sLR)) * (1 + e2/(sLE*sLE)))
			g := math.Exp(-0.5*r2/(sGR*sGR) - 0.5*e2/(sGE*sGE))
			mu := o[offMu]
			v += o[offIMax] * (mu*l + (1-mu)*g)
		}
		d := v - z[i]
		sum += d * d
	}
	return sum
}

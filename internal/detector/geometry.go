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

// Package detector holds detector geometry: polar coordinates around the beam center,
// tilt and distortion correction, the good-coordinate map of ring bands, and image transforms.
package detector

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	Deg2Rad = math.Pi / 180
	Rad2Deg = 180 / math.Pi
)

// Azimuth in degrees of the detector offset (y,z) from the beam center.
// Zero points up along z, positive angles have negative y.
func CalcEtaAngle(y, z float64) float64 {
	alpha := Rad2Deg * math.Acos(z/math.Hypot(y, z))
	if y > 0 {
		alpha = -alpha
	}
	return alpha
}

// Cartesian detector offset for the given radius and azimuth in degrees
func YZ4mREta(r, eta float64) (y, z float64) {
	s, c := math.Sincos(eta * Deg2Rad)
	return -r * s, r * c
}

// Radius and azimuth in degrees for the given detector offset. Inverse of YZ4mREta
func REta4mYZ(y, z float64) (r, eta float64) {
	return math.Hypot(y, z), CalcEtaAngle(y, z)
}

// Sine and cosine in degrees
func sind(x float64) float64 { return math.Sin(x * Deg2Rad) }
func cosd(x float64) float64 { return math.Cos(x * Deg2Rad) }

// Detector position, tilts and radial distortion. Lengths in micrometers, angles in degrees
type Geometry struct {
	NrPixels   int
	Ycen, Zcen float64 // beam center in pixels
	Px         float64 // pixel size
	Lsd        float64 // sample to detector distance
	Tx, Ty, Tz float64 // detector tilts
	P0, P1, P2 float64 // distortion coefficients
	P3         float64 // phase of the fourfold distortion term
	RhoD       float64 // radius normalizing the distortion polynomial

	tilt *mat.Dense
}

// Tilt rotation Rx*(Ry*Rz) of the detector plane
func (g *Geometry) Tilt() *mat.Dense {
	if g.tilt != nil {
		return g.tilt
	}
	sx, cx := math.Sincos(g.Tx * Deg2Rad)
	sy, cy := math.Sincos(g.Ty * Deg2Rad)
	sz, cz := math.Sincos(g.Tz * Deg2Rad)
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})
	var ryz mat.Dense
	ryz.Mul(ry, rz)
	tilt := mat.NewDense(3, 3, nil)
	tilt.Mul(rx, &ryz)
	g.tilt = tilt
	return tilt
}

// Radial distortion factor for normalized radius rho and azimuth eta
func (g *Geometry) DistortFunc(rho, eta float64) float64 {
	etaT := 90 - eta
	rho2 := rho * rho
	return g.P0*rho2*cosd(2*etaT) + g.P1*rho2*rho2*cosd(4*etaT+g.P3) + g.P2*rho2 + 1
}

// Tilt and distortion corrected radius in pixels of the given pixel in processing layout.
// Also returns the tilt corrected azimuth.
func (g *Geometry) CorrectedRadius(row, col float64) (rt, eta float64) {
	t := g.Tilt().RawMatrix()
	yc := (g.Ycen - row) * g.Px
	zc := (col - g.Zcen) * g.Px
	// tilt times (0, yc, zc), without allocating per pixel
	m := t.Data
	x := g.Lsd + m[1]*yc + m[2]*zc
	y := m[t.Stride+1]*yc + m[t.Stride+2]*zc
	z := m[2*t.Stride+1]*yc + m[2*t.Stride+2]*zc
	rad := g.Lsd / x * math.Hypot(y, z)
	eta = CalcEtaAngle(y, z)
	rho := 0.0
	if g.RhoD != 0 {
		rho = rad / g.RhoD
	}
	return rad * g.DistortFunc(rho, eta) / g.Px, eta
}

// A diffraction ring with nominal radius in pixels and intensity threshold
type Ring struct {
	Nr        int
	RadiusPx  float64
	Threshold float64
}

// Builds the good-coordinate map: per pixel the threshold of the ring band it falls into, or 0.
// Bands are RadiusPx +/- widthPx, exclusive. Where bands overlap, the last ring wins.
// With fullImage set, every pixel gets the threshold of the first ring.
func (g *Geometry) GoodCoords(rings []Ring, widthPx float64, fullImage bool) (coords []float64, nrCoords int) {
	n := g.NrPixels
	coords = make([]float64, n*n)
	if fullImage {
		if len(rings) == 0 {
			return coords, 0
		}
		for i := range coords {
			coords[i] = rings[0].Threshold
		}
		return coords, len(coords)
	}
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			rt, _ := g.CorrectedRadius(float64(row), float64(col))
			for _, r := range rings {
				if rt > r.RadiusPx-widthPx && rt < r.RadiusPx+widthPx {
					coords[row*n+col] = r.Threshold
					nrCoords++
				}
			}
		}
	}
	return coords, nrCoords
}

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
	"errors"
	"math"
	"testing"
	"time"
)

func TestBoundsRoundTrip(t *testing.T) {
	var b Bounds
	b.Resize(4)
	b.Set(0, 0, 10)
	b.Set(1, 5, -5) // swapped
	b.Set(2, 3, 3)  // fixed
	b.Set(3, 0.01, 1)
	x := []float64{2.5, -4, 3, 1}
	u := make([]float64, 4)
	b.ToFree(x, u)
	x2 := make([]float64, 4)
	b.ToBounded(u, x2)
	for i := range x {
		if math.Abs(x2[i]-x[i]) > 1e-9 {
			t.Errorf("x2[%d]=%g; want %g", i, x2[i], x[i])
		}
	}
	// any free value maps into the box
	for _, v := range []float64{-100, -1.3, 0, 7, 1e6} {
		for i := range u {
			u[i] = v
		}
		b.ToBounded(u, x2)
		for i := range x2 {
			if x2[i] < b.Lo[i]-1e-12 || x2[i] > b.Hi[i]+1e-12 {
				t.Errorf("u=%g: x[%d]=%g outside [%g,%g]", v, i, x2[i], b.Lo[i], b.Hi[i])
			}
		}
	}
}

func TestInitialGuess(t *testing.T) {
	// 3x3 block of pixels around (10,0), beam center at the origin
	var pp PolarPixels
	img := make([]float64, 32*32)
	var pixels []int32
	for r := 9; r <= 11; r++ {
		for c := 0; c <= 2; c++ {
			img[r*32+c] = 100
			pixels = append(pixels, int32(r*32+c))
		}
	}
	pp.Set(img, 32, pixels, 0, 0)
	seeds := []Seed{{Row: 10, Col: 1, Intensity: 200}}
	var b Bounds
	x := InitialGuess(&pp, seeds, 0, 0, 40, nil, &b)
	if len(x) != NumParams(1) {
		t.Fatalf("len=%d; want %d", len(x), NumParams(1))
	}
	if x[0] != 20 || b.Lo[0] != 0 || b.Hi[0] != 40 {
		t.Errorf("BG=%g [%g,%g]; want 20 [0,40]", x[0], b.Lo[0], b.Hi[0])
	}
	o := 1
	if x[o+offIMax] != 200 || b.Lo[o+offIMax] != 100 || b.Hi[o+offIMax] != 400 {
		t.Errorf("IMax=%g [%g,%g]; want 200 [100,400]", x[o+offIMax], b.Lo[o+offIMax], b.Hi[o+offIMax])
	}
	r0 := math.Hypot(10, 1)
	if math.Abs(x[o+offR]-r0) > 1e-12 || math.Abs(b.Hi[o+offR]-b.Lo[o+offR]-2) > 1e-12 {
		t.Errorf("R=%g [%g,%g]; want %g +/-1", x[o+offR], b.Lo[o+offR], b.Hi[o+offR], r0)
	}
	dEta := math.Atan(1/r0) * 180 / math.Pi
	if math.Abs((b.Hi[o+offEta]-b.Lo[o+offEta])/2-dEta) > 1e-9 {
		t.Errorf("Eta bounds [%g,%g]; want +/-%g", b.Lo[o+offEta], b.Hi[o+offEta], dEta)
	}
	if x[o+offMu] != 0.5 || b.Lo[o+offMu] != 0 || b.Hi[o+offMu] != 1 {
		t.Errorf("Mu=%g [%g,%g]; want 0.5 [0,1]", x[o+offMu], b.Lo[o+offMu], b.Hi[o+offMu])
	}
	if x[o+offSigmaGR] != x[o+offSigmaLR] || b.Lo[o+offSigmaGR] != 0.01 {
		t.Errorf("SigmaR=%g,%g lo %g", x[o+offSigmaGR], x[o+offSigmaLR], b.Lo[o+offSigmaGR])
	}
	if b.Lo[o+offSigmaGEta] != 0.005 || x[o+offSigmaGEta] > b.Hi[o+offSigmaGEta] {
		t.Errorf("SigmaEta=%g [%g,%g]", x[o+offSigmaGEta], b.Lo[o+offSigmaGEta], b.Hi[o+offSigmaGEta])
	}
	for i := range x {
		if x[i] < b.Lo[i] || x[i] > b.Hi[i] {
			t.Errorf("x[%d]=%g outside [%g,%g]", i, x[i], b.Lo[i], b.Hi[i])
		}
	}
}

func TestFitNoSeeds(t *testing.T) {
	_, err := NewFitterDefault().Fit(&PolarPixels{}, nil, 0, 0, 10, nil)
	if !errors.Is(err, ErrNoSeeds) {
		t.Errorf("err=%v; want ErrNoSeeds", err)
	}
}

func TestFitSinglePeak(t *testing.T) {
	truth := Peak{IMax: 800, R: 60.3, Eta: 30.2, Mu: 0.2, SigmaGR: 1.5, SigmaLR: 1.8, SigmaGEta: 1.6, SigmaLEta: 2}
	m := Model{BG: 5, Peaks: []Peak{truth}}
	const n, ycen, zcen = 96, 80.0, 20.0

	// render the model on the pixel grid, keep pixels above threshold
	img := make([]float64, n*n)
	var pixels []int32
	best, bestIdx := 0.0, 0
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			r, eta := math.Hypot(float64(row)-ycen, float64(col)-zcen), 0.0
			if r > 0 {
				eta = -math.Atan2(float64(row)-ycen, float64(col)-zcen) * 180 / math.Pi
			}
			if v := m.Value(r, eta); v >= 20 {
				img[row*n+col] = v
				pixels = append(pixels, int32(row*n+col))
				if v > best {
					best, bestIdx = v, row*n+col
				}
			}
		}
	}
	var pp PolarPixels
	pp.Set(img, n, pixels, ycen, zcen)
	seeds := []Seed{{Row: bestIdx / n, Col: bestIdx % n, Intensity: best}}

	f := &Fitter{MaxTime: 30 * time.Second, MaxRestarts: 3, SimplexSize: 0.3}
	res, err := f.Fit(&pp, seeds, ycen, zcen, 20, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got := res.Model.Peaks[0]
	if math.Abs(got.IMax-truth.IMax) > 0.05*truth.IMax {
		t.Errorf("IMax=%g; want %g +/-5%%", got.IMax, truth.IMax)
	}
	if math.Abs(got.R-truth.R) > 0.2 {
		t.Errorf("R=%g; want %g", got.R, truth.R)
	}
	if math.Abs(got.Eta-truth.Eta) > 0.3 {
		t.Errorf("Eta=%g; want %g", got.Eta, truth.Eta)
	}
	if res.ReturnCode != int(res.Status) {
		t.Errorf("ReturnCode=%d; want %d", res.ReturnCode, int(res.Status))
	}
}

func TestFitNarrowGaussianAvoidsLorentzianBound(t *testing.T) {
	const n, sigma = 64, 1.5
	img := make([]float64, n*n)
	var pixels []int32
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			dr, dc := float64(row)-32, float64(col)-32
			if v := 1000 * math.Exp(-0.5*(dr*dr+dc*dc)/(sigma*sigma)); v >= 50 {
				img[row*n+col] = v
				pixels = append(pixels, int32(row*n+col))
			}
		}
	}
	var pp PolarPixels
	pp.Set(img, n, pixels, 0, 0)
	seeds := []Seed{{Row: 32, Col: 32, Intensity: 1000}}

	single := &Fitter{MaxTime: 30 * time.Second, MaxRestarts: 3, SimplexSize: 0.3}
	resSingle, err := single.Fit(&pp, seeds, 0, 0, 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := NewFitterDefault()
	f.MaxTime = 30 * time.Second
	res, err := f.Fit(&pp, seeds, 0, 0, 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Residual > resSingle.Residual {
		t.Errorf("residual=%g; want at most %g of the single start", res.Residual, resSingle.Residual)
	}
	got := res.Model.Peaks[0]
	if math.Abs(got.IMax-1000) > 50 {
		t.Errorf("IMax=%g; want 1000 +/-5%%", got.IMax)
	}
	if got.Mu > 0.5 {
		t.Errorf("Mu=%g; want mostly Gaussian", got.Mu)
	}
	if math.Abs(got.SigmaGR-sigma) > 0.5 {
		t.Errorf("SigmaGR=%g; want %g", got.SigmaGR, sigma)
	}
	if res.Start < 0 || res.Start >= len(f.StartMus) {
		t.Errorf("Start=%d; want index into %v", res.Start, f.StartMus)
	}
}

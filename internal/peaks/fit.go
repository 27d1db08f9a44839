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
	"time"

	"github.com/mlnoga/hedmpeaks/internal/detector"
	"gonum.org/v1/gonum/optimize"
)

var ErrNoSeeds = errors.New("no seeds to fit")

// Pixels of a region in polar coordinates around the beam center, with observed intensities
type PolarPixels struct {
	R, Eta, Z []float64
}

// Fills the polar coordinates for the given pixel indices of an n x n image
func (pp *PolarPixels) Set(img []float64, n int, pixels []int32, ycen, zcen float64) {
	pp.R, pp.Eta, pp.Z = pp.R[:0], pp.Eta[:0], pp.Z[:0]
	for _, p := range pixels {
		row, col := int(p)/n, int(p)%n
		r, eta := detector.REta4mYZ(float64(row)-ycen, float64(col)-zcen)
		pp.R = append(pp.R, r)
		pp.Eta = append(pp.Eta, eta)
		pp.Z = append(pp.Z, img[p])
	}
}

// Fits multi-peak pseudo-Voigt models to regions with a bounded Nelder-Mead simplex search
type Fitter struct {
	MaxTime     time.Duration // wall clock limit per region, across starts and restarts. 0 for none
	MaxRestarts int           // restarts from the last optimum while it keeps improving
	SimplexSize float64       // initial simplex size in free coordinates

	// Lorentzian fractions Mu of the fresh starts. Each start re-seeds all parameters from the
	// initial guess. The start with the lowest residual wins. Empty for a single start at 0.5
	StartMus []float64
}

func NewFitterDefault() *Fitter {
	return &Fitter{
		MaxTime:     300 * time.Second,
		MaxRestarts: 3,
		SimplexSize: 0.3,
		StartMus:    []float64{0.5, 0},
	}
}

// Outcome of fitting one region
type FitResult struct {
	Model      Model
	Residual   float64         // sum of squared residuals
	Status     optimize.Status // termination status of the last optimizer run of the winning start
	ReturnCode int             // numeric Status, written to the peak table
	Start      int             // index of the winning start
	Restarts   int
}

// Reusable buffers for fitting, one per worker
type FitWork struct {
	x0, x, u, ub, xb []float64
	bounds           Bounds
}

func tand(x float64) float64 { return math.Tan(x * detector.Deg2Rad) }
func atand(x float64) float64 { return detector.Rad2Deg * math.Atan(x) }

// Builds the initial parameter vector x and its bounds for the given seeds.
// thresh is the intensity threshold of the region, bounding the background.
func InitialGuess(pp *PolarPixels, seeds []Seed, ycen, zcen, thresh float64, x []float64, b *Bounds) []float64 {
	nPeaks := len(seeds)
	np := NumParams(nPeaks)
	if cap(x) < np {
		x = make([]float64, np)
	}
	x = x[:np]
	b.Resize(np)

	x[0] = thresh / 2
	b.Set(0, 0, thresh)

	rMin, rMax, etaMin, etaMax := 1e8, 0.0, 190.0, -190.0
	for i := range pp.R {
		rMin, rMax = math.Min(rMin, pp.R[i]), math.Max(rMax, pp.R[i])
		etaMin, etaMax = math.Min(etaMin, pp.Eta[i]), math.Max(etaMax, pp.Eta[i])
	}
	maxRWidth := (rMax-rMin)/2 + 1
	maxEtaWidth := (etaMax-etaMin)/2 + atand(2/(rMax+rMin))
	if etaMax-etaMin > 180 {
		maxEtaWidth -= 180
	}
	width := math.Sqrt(float64(len(pp.R)) / float64(nPeaks))
	if width > maxRWidth {
		width = maxRWidth
	}

	for i, s := range seeds {
		o := 1 + i*ParamsPerPeak
		r0, eta0 := detector.REta4mYZ(float64(s.Row)-ycen, float64(s.Col)-zcen)
		initSigmaEta := width / r0
		if atand(initSigmaEta) > maxEtaWidth {
			initSigmaEta = tand(maxEtaWidth) - 0.0001
		}
		sigmaEta0 := atand(initSigmaEta)
		dEta := atand(1 / r0)

		x[o+offIMax], x[o+offR], x[o+offEta], x[o+offMu] = s.Intensity, r0, eta0, 0.5
		x[o+offSigmaGR], x[o+offSigmaLR] = width, width
		x[o+offSigmaGEta], x[o+offSigmaLEta] = sigmaEta0, sigmaEta0

		b.Set(o+offIMax, s.Intensity/2, s.Intensity*2)
		b.Set(o+offR, r0-1, r0+1)
		b.Set(o+offEta, eta0-dEta, eta0+dEta)
		b.Set(o+offMu, 0, 1)
		b.Set(o+offSigmaGR, 0.01, 2*maxRWidth)
		b.Set(o+offSigmaLR, 0.01, 2*maxRWidth)
		b.Set(o+offSigmaGEta, 0.005, 2*maxEtaWidth)
		b.Set(o+offSigmaLEta, 0.005, 2*maxEtaWidth)
	}
	return x
}

var defaultStartMus = []float64{0.5}

// Fits a joint model of len(seeds) peaks to the region pixels. Non-convergence is not an error:
// the best parameters found are returned together with the optimizer status.
// work may be nil, in which case buffers are allocated.
func (f *Fitter) Fit(pp *PolarPixels, seeds []Seed, ycen, zcen, thresh float64, work *FitWork) (*FitResult, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if work == nil {
		work = &FitWork{}
	}
	work.x0 = InitialGuess(pp, seeds, ycen, zcen, thresh, work.x0, &work.bounds)
	np := len(work.x0)
	if cap(work.u) < np {
		work.x, work.u = make([]float64, np), make([]float64, np)
		work.ub, work.xb = make([]float64, np), make([]float64, np)
	}
	x, u, ub, xb, b := work.x[:np], work.u[:np], work.ub[:np], work.xb[:np], &work.bounds

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			b.ToBounded(u, xb)
			return SumSquaredResiduals(xb, pp.R, pp.Eta, pp.Z)
		},
	}
	var deadline time.Time
	if f.MaxTime > 0 {
		deadline = time.Now().Add(f.MaxTime)
	}

	startMus := f.StartMus
	if len(startMus) == 0 {
		startMus = defaultStartMus
	}
	res := &FitResult{Status: optimize.NotTerminated}
	for start, mu := range startMus {
		copy(x, work.x0)
		for o := 1 + offMu; o < np; o += ParamsPerPeak {
			x[o] = mu
		}
		b.Clamp(x)
		b.ToFree(x, u)
		residual, status, restarts, err := f.descend(problem, u, deadline)
		if err != nil {
			if start == 0 {
				return nil, err
			}
			break
		}
		if start == 0 || residual < res.Residual {
			copy(ub, u)
			res.Residual, res.Status, res.Start, res.Restarts = residual, status, start, restarts
		}
		if status == optimize.RuntimeLimit {
			break
		}
	}

	b.ToBounded(ub, x)
	res.Model.SetVector(x)
	res.ReturnCode = int(res.Status)
	return res, nil
}

// Runs Nelder-Mead from u, restarting from the last optimum while it keeps improving.
// On return u holds the best point found. Errors only if the first run yields no result.
func (f *Fitter) descend(problem optimize.Problem, u []float64, deadline time.Time) (residual float64, status optimize.Status, restarts int, err error) {
	residual, status = problem.Func(u), optimize.NotTerminated
	for attempt := 0; attempt <= f.MaxRestarts; attempt++ {
		settings := &optimize.Settings{
			Converger: &optimize.FunctionConverge{Absolute: 1e-10, Relative: 1e-10, Iterations: 20 * len(u)},
		}
		if !deadline.IsZero() {
			settings.Runtime = time.Until(deadline)
			if settings.Runtime <= 0 {
				status = optimize.RuntimeLimit
				break
			}
		}
		result, e := optimize.Minimize(problem, u, settings, &optimize.NelderMead{SimplexSize: f.SimplexSize})
		if result == nil {
			if attempt == 0 && e != nil {
				return residual, status, 0, e
			}
			break
		}
		improved := result.F < residual-1e-9*math.Abs(residual)
		if result.F < residual {
			copy(u, result.X)
			residual = result.F
		}
		status, restarts = result.Status, attempt
		if e != nil || result.Status == optimize.RuntimeLimit || !improved {
			break
		}
	}
	return residual, status, restarts, nil
}

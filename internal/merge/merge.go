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

// Package merge joins peaks which continue across consecutive omega frames into single spots.
package merge

import (
	"math"
	"sort"

	"github.com/mlnoga/hedmpeaks/internal/table"
)

// Rows below this integrated intensity are dropped before merging
const MinIntensity = 1

// A merged spot, spanning one or more consecutive frames
type Spot struct {
	SpotID              int
	IntegratedIntensity float64
	Omega               float64 // intensity weighted
	YCen, ZCen          float64 // intensity weighted
	IMax                float64
	MinOme, MaxOme      float64
	SigmaR, SigmaEta    float64
	NrPx, NrPxTot       int
}

// A spot being tracked through frames
type track struct {
	srcID            int
	intInt           float64
	omegaW, yW, zW   float64 // intensity weighted sums
	iMax             float64
	y, z             float64 // position in the last frame
	minOme, maxOme   float64
	sigmaR, sigmaEta float64
	nrPx, nrPxTot    int
}

func newTrack(r *table.Row) track {
	return track{
		srcID:  r.SpotID,
		intInt: r.IntegratedIntensity,
		omegaW: r.Omega * r.IntegratedIntensity,
		yW:     r.YCen * r.IntegratedIntensity,
		zW:     r.ZCen * r.IntegratedIntensity,
		iMax:   r.IMax,
		y:      r.YCen, z: r.ZCen,
		minOme: r.Omega, maxOme: r.Omega,
		sigmaR: r.SigmaR, sigmaEta: r.SigmaEta,
		nrPx: r.NrPx, nrPxTot: r.NrPxTot,
	}
}

func (t *track) add(r *table.Row) {
	t.intInt += r.IntegratedIntensity
	t.omegaW += r.Omega * r.IntegratedIntensity
	t.yW += r.YCen * r.IntegratedIntensity
	t.zW += r.ZCen * r.IntegratedIntensity
	t.iMax = math.Max(t.iMax, r.IMax)
	t.y, t.z = r.YCen, r.ZCen
	t.minOme = math.Min(t.minOme, r.Omega)
	t.maxOme = math.Max(t.maxOme, r.Omega)
	t.sigmaR = math.Max(t.sigmaR, r.SigmaR)
	t.sigmaEta = math.Max(t.sigmaEta, r.SigmaEta)
	t.nrPx += r.NrPx
	t.nrPxTot += r.NrPxTot
}

func (t *track) spot(id int) Spot {
	return Spot{
		SpotID:              id,
		IntegratedIntensity: t.intInt,
		Omega:               t.omegaW / t.intInt,
		YCen:                t.yW / t.intInt,
		ZCen:                t.zW / t.intInt,
		IMax:                t.iMax,
		MinOme:              t.minOme, MaxOme: t.maxOme,
		SigmaR: t.sigmaR, SigmaEta: t.sigmaEta,
		NrPx: t.nrPx, NrPxTot: t.nrPxTot,
	}
}

// Drops faint rows, optionally replaces fitted centers by the seed positions, and sorts by eta
func PrepareRows(rows []table.Row, useMaximaPositions bool) []table.Row {
	res := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		if r.IntegratedIntensity < MinIntensity {
			continue
		}
		if useMaximaPositions {
			r.YCen, r.ZCen = float64(r.MaxY), float64(r.MaxZ)
		}
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Eta < res[j].Eta })
	return res
}

// Links spots of consecutive frames. Feed frames in order with Add, then call Finish.
type Merger struct {
	OverlapLength float64 // maximum center distance in pixels for linking

	current []track
	frames  int
	done    []Spot
}

func NewMerger(overlapLength float64) *Merger {
	return &Merger{OverlapLength: overlapLength}
}

// Adds the prepared rows of the next frame. Spots of the previous frame which do not continue
// into this frame are completed.
func (m *Merger) Add(rows []table.Row) {
	m.frames++
	if m.frames == 1 {
		m.current = m.current[:0]
		for i := range rows {
			m.current = append(m.current, newTrack(&rows[i]))
		}
		return
	}

	usedCur := make([]bool, len(m.current))
	usedNew := make([]bool, len(rows))
	for i := range m.current {
		cur := &m.current[i]
		best, bestLen := -1, math.Inf(1)
		for j := range rows {
			if usedNew[j] {
				continue
			}
			d := math.Hypot(rows[j].YCen-cur.y, rows[j].ZCen-cur.z)
			if d < m.OverlapLength && d < bestLen {
				best, bestLen = j, d
			}
		}
		if best < 0 {
			continue
		}
		// another unlinked spot of the previous frame is closer to the candidate
		closer := false
		for k := range m.current {
			if k == i || usedCur[k] {
				continue
			}
			if math.Hypot(m.current[k].y-rows[best].YCen, m.current[k].z-rows[best].ZCen) < bestLen {
				closer = true
				break
			}
		}
		if closer {
			continue
		}
		usedCur[i], usedNew[best] = true, true
		cur.add(&rows[best])
	}

	next := make([]track, 0, len(rows))
	for i := range m.current {
		if usedCur[i] {
			next = append(next, m.current[i])
		} else {
			m.done = append(m.done, m.current[i].spot(len(m.done)+1))
		}
	}
	for j := range rows {
		if !usedNew[j] {
			next = append(next, newTrack(&rows[j]))
		}
	}
	m.current = next
}

// Completes all open spots and returns the merged spots, numbered from 1.
// With a single frame, spots keep their IDs from the peak table.
func (m *Merger) Finish() []Spot {
	if m.frames == 1 {
		res := make([]Spot, len(m.current))
		for i := range m.current {
			res[i] = m.current[i].spot(m.current[i].srcID)
		}
		return res
	}
	for i := range m.current {
		m.done = append(m.done, m.current[i].spot(len(m.done)+1))
	}
	m.current = nil
	return m.done
}

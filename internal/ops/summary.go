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

package ops

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Outcome of a peak search over a block of frames
type Summary struct {
	Frames            int `json:"frames"`
	Processed         int `json:"processed"`
	SkippedOmega      int `json:"skippedOmega"`
	SkippedUnreadable int `json:"skippedUnreadable"`
	Regions           int `json:"regions"`
	Fitted            int `json:"fitted"`
	Peaks             int `json:"peaks"`

	PeaksMean   float64       `json:"peaksMean"`   // per processed frame
	PeaksStdDev float64       `json:"peaksStdDev"` // per processed frame
	Elapsed     time.Duration `json:"elapsed"`
}

func (s *Summary) String() string {
	return fmt.Sprintf("Processed %d of %d frames (%d outside omega ranges, %d unreadable) in %v: "+
		"%d regions, %d fitted, %d peaks, %.1f+-%.1f peaks per frame",
		s.Processed, s.Frames, s.SkippedOmega, s.SkippedUnreadable, s.Elapsed.Round(time.Millisecond),
		s.Regions, s.Fitted, s.Peaks, s.PeaksMean, s.PeaksStdDev)
}

// Collects frame results from several workers
type summaryCollector struct {
	mutex         sync.Mutex
	s             Summary
	peaksPerFrame []float64
}

func newSummaryCollector(frames int) *summaryCollector {
	return &summaryCollector{s: Summary{Frames: frames}, peaksPerFrame: make([]float64, 0, frames)}
}

func (sc *summaryCollector) add(res *FrameResult) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.s.Processed++
	sc.s.Regions += res.Stats.Regions
	sc.s.Fitted += res.Stats.Fitted
	sc.s.Peaks += res.Spots
	sc.peaksPerFrame = append(sc.peaksPerFrame, float64(res.Spots))
}

func (sc *summaryCollector) skipOmega() {
	sc.mutex.Lock()
	sc.s.SkippedOmega++
	sc.mutex.Unlock()
}

func (sc *summaryCollector) skipUnreadable() {
	sc.mutex.Lock()
	sc.s.SkippedUnreadable++
	sc.mutex.Unlock()
}

func (sc *summaryCollector) summary(elapsed time.Duration) *Summary {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	s := sc.s
	s.Elapsed = elapsed
	switch len(sc.peaksPerFrame) {
	case 0:
	case 1:
		s.PeaksMean = sc.peaksPerFrame[0]
	default:
		s.PeaksMean, s.PeaksStdDev = stat.MeanStdDev(sc.peaksPerFrame, nil)
	}
	return &s
}

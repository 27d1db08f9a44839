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

import "fmt"

// A half-open range [Start, End) of frame numbers
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Frames of block blockNr when nFrames are split into nBlocks blocks of ceil(nFrames/nBlocks) frames.
// The last blocks may be shorter or empty.
func BlockRange(nFrames, nBlocks, blockNr int) (Range, error) {
	if nFrames < 0 || nBlocks < 1 || blockNr < 0 || blockNr >= nBlocks {
		return Range{}, fmt.Errorf("invalid block %d of %d for %d frames", blockNr, nBlocks, nFrames)
	}
	perBlock := ceilDiv(nFrames, nBlocks)
	start, end := perBlock*blockNr, perBlock*(blockNr+1)
	if end > nFrames {
		end = nFrames
	}
	if start > end {
		start = end
	}
	return Range{start, end}, nil
}

// Splits the range into at most n contiguous chunks of ceil(len/n) frames. Empty chunks are omitted.
func (r Range) Split(n int) []Range {
	if r.Len() <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	per := ceilDiv(r.Len(), n)
	chunks := make([]Range, 0, n)
	for start := r.Start; start < r.End; start += per {
		end := start + per
		if end > r.End {
			end = r.End
		}
		chunks = append(chunks, Range{start, end})
	}
	return chunks
}

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

package frame

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/mlnoga/hedmpeaks/internal/detector"
)

// Loads the average dark frame in processing layout. All full frames at the end of the file are
// averaged after applying the image transforms, leading bytes which do not fill a frame are skipped.
// A missing or unnamed file yields a zero dark frame.
func LoadDark(fileName string, n int, pt PixelType, opts []detector.TransOpt, logWriter io.Writer) ([]float64, error) {
	dark := make([]float64, n*n)
	if fileName == "" {
		fmt.Fprintf(logWriter, "No dark file given. Using no dark subtraction.\n")
		return dark, nil
	}
	file, err := os.Open(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(logWriter, "Could not read the dark file %s. Using no dark subtraction.\n", fileName)
		return dark, nil
	} else if err != nil {
		return nil, err
	}
	defer file.Close()
	fi, err := file.Stat()
	if err != nil {
		return nil, err
	}

	r := &RawReader{NrPixels: n, PixelType: pt}
	frameBytes := r.FrameBytes()
	nFrs := fi.Size() / frameBytes
	skip := fi.Size() - nFrs*frameBytes
	fmt.Fprintf(logWriter, "Reading dark file: %s, nFrames: %d, skipping first %d bytes.\n", fileName, nFrs, skip)
	if nFrs == 0 {
		return dark, nil
	}

	sum := make([]float64, n*n)
	frame := make([]float64, n*n)
	scratch := make([]float64, n*n)
	for i := int64(0); i < nFrs; i++ {
		if err := r.ReadFrameAt(file, skip+i*frameBytes, frame); err != nil {
			return nil, fmt.Errorf("dark file %s: %w", fileName, err)
		}
		detector.Transform(frame, n, opts, scratch)
		for j, v := range frame {
			sum[j] += v
		}
	}
	inv := 1 / float64(nFrs)
	for j := range sum {
		sum[j] *= inv
	}
	detector.Transpose(sum, n, dark)
	return dark, nil
}

// Loads the flood field as n*n little endian float64 values. A missing or unnamed file yields all ones.
func LoadFlood(fileName string, n int, logWriter io.Writer) ([]float64, error) {
	flood := make([]float64, n*n)
	missing := fileName == ""
	var file *os.File
	if !missing {
		var err error
		file, err = os.Open(fileName)
		if errors.Is(err, fs.ErrNotExist) {
			missing = true
		} else if err != nil {
			return nil, err
		} else {
			defer file.Close()
		}
	}
	if missing {
		fmt.Fprintf(logWriter, "Could not read the flood file. Using no flood correction.\n")
		for i := range flood {
			flood[i] = 1
		}
		return flood, nil
	}

	r := &RawReader{NrPixels: n, PixelType: PixelFloat64}
	if err := r.ReadFrameAt(file, 0, flood); err != nil {
		return nil, fmt.Errorf("flood file %s: %w", fileName, err)
	}
	return flood, nil
}

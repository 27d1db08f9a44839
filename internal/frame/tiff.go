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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"
)

// Reads single frame grayscale TIFF files
type TIFFReader struct {
	NrPixels int
}

func (r *TIFFReader) NumFrames(fileName string) (int, error) {
	if _, err := os.Stat(fileName); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *TIFFReader) ReadFrame(fileName string, idx int, dst []float64) error {
	if idx != 0 {
		return fmt.Errorf("%s: frame %d requested, TIFF files hold one frame", fileName, idx)
	}
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	img, err := tiff.Decode(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	return r.convert(img, dst)
}

// Copies a decoded image into dst, converting to float64 gray values
func (r *TIFFReader) convert(img image.Image, dst []float64) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width != r.NrPixels || height != r.NrPixels {
		return fmt.Errorf("image is %dx%d, expected %dx%d", width, height, r.NrPixels, r.NrPixels)
	}
	if len(dst) < width*height {
		return fmt.Errorf("destination holds %d pixels, need %d", len(dst), width*height)
	}
	switch t := img.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dst[y*width+x] = float64(t.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dst[y*width+x] = float64(t.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				dst[y*width+x] = float64(c.Y)
			}
		}
	}
	return nil
}

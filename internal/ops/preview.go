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
	"bufio"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Hue increment between consecutive region IDs, the golden angle
const previewHueStep = 137.50776

// Writes a JPEG preview of a corrected n x n frame to the given file. See WritePreview.
func WritePreviewToFile(fileName string, img []float64, labels []int32, n int, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	if err := WritePreview(writer, img, labels, n, quality); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Writes a JPEG preview of a corrected n x n frame. Each labeled region gets its own hue,
// with the logarithm of the intensity as brightness. Background pixels are black.
func WritePreview(writer io.Writer, img []float64, labels []int32, n int, quality int) error {
	max := 0.0
	for _, v := range img {
		if v > max {
			max = v
		}
	}
	scale := 0.0
	if max > 0 {
		scale = 1 / math.Log1p(max)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, n, n))
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			i := row*n + col
			id := labels[i]
			if id == 0 || img[i] <= 0 {
				continue
			}
			v := 0.25 + 0.75*math.Log1p(img[i])*scale
			hue := math.Mod(float64(id)*previewHueStep, 360)
			c := colorful.Hsv(hue, 0.8, math.Min(v, 1)).Clamped()
			r, g, b := c.RGB255()
			o := rgba.PixOffset(col, row)
			rgba.Pix[o+0], rgba.Pix[o+1], rgba.Pix[o+2], rgba.Pix[o+3] = r, g, b, 255
		}
	}
	// background stays transparent black, make it opaque
	for o := 3; o < len(rgba.Pix); o += 4 {
		rgba.Pix[o] = 255
	}
	return jpeg.Encode(writer, rgba, &jpeg.Options{Quality: quality})
}

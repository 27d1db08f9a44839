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

// Package frame reads detector frames from raw binary and TIFF files into float64 pixel arrays.
package frame

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported frame format")

// Reads square detector frames of a fixed size from files.
// Implementations open their own file handle per call, so one reader can be shared by several workers.
type Reader interface {
	// Number of frames stored in the given file
	NumFrames(fileName string) (int, error)

	// Reads frame idx of the given file into dst, which must hold NrPixels*NrPixels values
	ReadFrame(fileName string, idx int, dst []float64) error
}

// Binary pixel layout of raw detector files
type PixelType int

const (
	PixelUint16 PixelType = iota
	PixelUint32
	PixelInt32
	PixelFloat32
	PixelFloat64
)

// Parses the DataType parameter. Numeric codes follow the beamline convention
// 1=uint16, 2=float64, 3=float32, 4=uint32, 5=int32.
func ParsePixelType(s string) (PixelType, error) {
	switch strings.ToLower(s) {
	case "", "uint16", "1":
		return PixelUint16, nil
	case "float64", "double", "2":
		return PixelFloat64, nil
	case "float32", "float", "3":
		return PixelFloat32, nil
	case "uint32", "4":
		return PixelUint32, nil
	case "int32", "5":
		return PixelInt32, nil
	}
	return 0, fmt.Errorf("%w: data type %q", ErrUnsupportedFormat, s)
}

// Bytes per pixel
func (pt PixelType) Size() int {
	switch pt {
	case PixelUint16:
		return 2
	case PixelFloat64:
		return 8
	default:
		return 4
	}
}

func (pt PixelType) String() string {
	switch pt {
	case PixelUint16:
		return "uint16"
	case PixelUint32:
		return "uint32"
	case PixelInt32:
		return "int32"
	case PixelFloat32:
		return "float32"
	case PixelFloat64:
		return "float64"
	}
	return fmt.Sprintf("PixelType(%d)", int(pt))
}

// Options for creating a reader
type Options struct {
	NrPixels  int
	HeadSize  int
	PixelType PixelType
	MaskBadPx bool
	BadPx     float64 // pixels with this raw value are set to zero if MaskBadPx is set
}

// Creates a reader for the given file extension. TIFF extensions get a TIFF reader,
// HDF5 is not supported, everything else is read as raw binary.
func NewReader(ext string, opts Options) (Reader, error) {
	var r Reader
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "tif", "tiff":
		r = &TIFFReader{NrPixels: opts.NrPixels}
	case "h5", "hdf", "hdf5", "nxs":
		return nil, fmt.Errorf("%w: %s containers", ErrUnsupportedFormat, ext)
	default:
		r = &RawReader{NrPixels: opts.NrPixels, HeadSize: opts.HeadSize, PixelType: opts.PixelType}
	}
	if opts.MaskBadPx {
		r = &BadPixelMasker{Reader: r, BadPx: opts.BadPx}
	}
	return r, nil
}

// Wraps a reader, zeroing pixels with the configured bad pixel value
type BadPixelMasker struct {
	Reader
	BadPx float64
}

func (m *BadPixelMasker) ReadFrame(fileName string, idx int, dst []float64) error {
	if err := m.Reader.ReadFrame(fileName, idx, dst); err != nil {
		return err
	}
	for i, v := range dst {
		if v == m.BadPx {
			dst[i] = 0
		}
	}
	return nil
}

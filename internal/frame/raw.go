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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// Reads frames from headered binary files. Frames are packed back to back after
// a fixed size header, little endian, in row major order.
type RawReader struct {
	NrPixels  int
	HeadSize  int
	PixelType PixelType

	bufs sync.Pool
}

// Size of one frame in bytes
func (r *RawReader) FrameBytes() int64 {
	return int64(r.NrPixels) * int64(r.NrPixels) * int64(r.PixelType.Size())
}

func (r *RawReader) NumFrames(fileName string) (int, error) {
	fi, err := os.Stat(fileName)
	if err != nil {
		return 0, err
	}
	return int((fi.Size() - int64(r.HeadSize)) / r.FrameBytes()), nil
}

func (r *RawReader) ReadFrame(fileName string, idx int, dst []float64) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.ReadFrameAt(f, int64(r.HeadSize)+int64(idx)*r.FrameBytes(), dst)
}

// Reads one frame at the given byte offset
func (r *RawReader) ReadFrameAt(ra io.ReaderAt, offset int64, dst []float64) error {
	n := r.NrPixels * r.NrPixels
	if len(dst) < n {
		return fmt.Errorf("destination holds %d pixels, need %d", len(dst), n)
	}
	size := int(r.FrameBytes())
	buf, _ := r.bufs.Get().([]byte)
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	defer r.bufs.Put(buf)

	if _, err := ra.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("reading %d bytes at offset %d: %w", size, offset, err)
	}
	decode(buf, r.PixelType, dst[:n])
	return nil
}

// Converts little endian pixels into float64 values
func decode(buf []byte, pt PixelType, dst []float64) {
	le := binary.LittleEndian
	switch pt {
	case PixelUint16:
		for i := range dst {
			dst[i] = float64(le.Uint16(buf[i*2:]))
		}
	case PixelUint32:
		for i := range dst {
			dst[i] = float64(le.Uint32(buf[i*4:]))
		}
	case PixelInt32:
		for i := range dst {
			dst[i] = float64(int32(le.Uint32(buf[i*4:])))
		}
	case PixelFloat32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(le.Uint32(buf[i*4:])))
		}
	case PixelFloat64:
		for i := range dst {
			dst[i] = math.Float64frombits(le.Uint64(buf[i*8:]))
		}
	}
}

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

package merge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mlnoga/hedmpeaks/internal/params"
	"github.com/mlnoga/hedmpeaks/internal/table"
)

const Header = "SpotID IntegratedIntensity Omega(degrees) YCen(px) ZCen(px) IMax MinOme(degrees) " +
	"MaxOme(degress) SigmaR SigmaEta NrPx NrPxTot"

// Writes the header and merged spots
func Write(w io.Writer, spots []Spot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header)
	for i := range spots {
		s := &spots[i]
		fmt.Fprintf(bw, "%d %f %f %f %f %f %f %f %f %f %f %f\n", s.SpotID, s.IntegratedIntensity, s.Omega,
			s.YCen, s.ZCen, s.IMax, s.MinOme, s.MaxOme, s.SigmaR, s.SigmaEta, float64(s.NrPx), float64(s.NrPxTot))
	}
	return bw.Flush()
}

// Merges the peak tables of frames StartNr to EndNr into the merged spot table.
// Frames without a peak table, such as those skipped for their omega, count as frames without spots.
// Returns the number of merged spots.
func Run(p *params.Params, logWriter io.Writer) (nSpots int, err error) {
	if p.EndNr < p.StartNr {
		return 0, fmt.Errorf("EndNr %d is less than StartNr %d", p.EndNr, p.StartNr)
	}
	m := NewMerger(p.OverlapLength)
	for nr := p.StartNr; nr <= p.EndNr; nr++ {
		fileName := p.PeakTableName(nr)
		rows, err := table.ReadFile(fileName)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(logWriter, "%d: no peak table %s, assuming no spots\n", nr, fileName)
			rows = nil
		} else if err != nil {
			return 0, err
		}
		rows = PrepareRows(rows, p.UseMaximaPositions)
		m.Add(rows)
	}
	spots := m.Finish()

	outName := p.MergedTableName()
	if err := os.MkdirAll(filepath.Dir(outName), 0777); err != nil {
		return 0, err
	}
	f, err := os.Create(outName)
	if err != nil {
		return 0, err
	}
	if err := Write(f, spots); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	fmt.Fprintf(logWriter, "Merged frames %d to %d into %d spots, written to %s\n", p.StartNr, p.EndNr, len(spots), outName)
	return len(spots), nil
}

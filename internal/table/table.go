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

// Package table reads and writes the whitespace separated per-frame peak tables.
package table

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mlnoga/hedmpeaks/internal/peaks"
)

const Header = "SpotID IntegratedIntensity Omega(degrees) YCen(px) ZCen(px) IMax Radius(px) Eta(degrees) " +
	"SigmaR SigmaEta NrPixels TotalNrPixelsInPeakRegion nPeaks maxY maxZ diffY diffZ rawIMax returnCode"

// Number of columns of a peak table row
const NumColumns = 19

// One row of a peak table
type Row struct {
	SpotID int
	Omega  float64
	peaks.Spot
}

// Writes the header and rows. Spot IDs are taken from the rows
func Write(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header)
	for i := range rows {
		r := &rows[i]
		fmt.Fprintf(bw, "%d %f %f %f %f %f %f %f ", r.SpotID, r.IntegratedIntensity, r.Omega, r.YCen, r.ZCen, r.IMax, r.Radius, r.Eta)
		fmt.Fprintf(bw, "%f %f ", r.SigmaR, r.SigmaEta)
		fmt.Fprintf(bw, "%d %d %d %d %d %f %f %f %d\n", r.NrPx, r.NrPxTot, r.NPeaks, r.MaxY, r.MaxZ, r.DiffY, r.DiffZ, r.RawIMax, r.ReturnCode)
	}
	return bw.Flush()
}

// Numbers spots from 1 and writes them with the given omega to a new file
func WriteFile(fileName string, omega float64, spots []peaks.Spot) error {
	rows := make([]Row, len(spots))
	for i, s := range spots {
		rows[i] = Row{SpotID: i + 1, Omega: omega, Spot: s}
	}
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Reads rows, skipping the header line and blank lines
func Read(r io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	lineNr := 0
	for scanner.Scan() {
		lineNr++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "SpotID") {
			continue
		}
		row, err := parseRow(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNr, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

// Reads a peak table file
func ReadFile(fileName string) ([]Row, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return rows, nil
}

func parseRow(fields []string) (row Row, err error) {
	if len(fields) < NumColumns {
		return row, fmt.Errorf("expected %d columns, got %d", NumColumns, len(fields))
	}
	p := parser{fields: fields}
	row.SpotID = p.nextInt()
	row.IntegratedIntensity = p.nextFloat()
	row.Omega = p.nextFloat()
	row.YCen = p.nextFloat()
	row.ZCen = p.nextFloat()
	row.IMax = p.nextFloat()
	row.Radius = p.nextFloat()
	row.Eta = p.nextFloat()
	row.SigmaR = p.nextFloat()
	row.SigmaEta = p.nextFloat()
	row.NrPx = p.nextInt()
	row.NrPxTot = p.nextInt()
	row.NPeaks = p.nextInt()
	row.MaxY = p.nextInt()
	row.MaxZ = p.nextInt()
	row.DiffY = p.nextFloat()
	row.DiffZ = p.nextFloat()
	row.RawIMax = p.nextFloat()
	row.ReturnCode = p.nextInt()
	return row, p.err
}

// Sequential field parser remembering the first error
type parser struct {
	fields []string
	i      int
	err    error
}

func (p *parser) next() string {
	s := p.fields[p.i]
	p.i++
	return s
}

func (p *parser) nextFloat() float64 {
	s := p.next()
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", p.i, err)
	}
	return v
}

func (p *parser) nextInt() int {
	s := p.next()
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", p.i, err)
	}
	return v
}

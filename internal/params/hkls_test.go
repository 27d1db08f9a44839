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

package params

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const hkls = `h k l D-spacing RingNr g1 g2 g3 Theta 2Theta Radius
1 1 1 2.08 1 0 0 0 1.2 2.4 40000
-1 1 1 2.08 1 0 0 0 1.2 2.4 40000
2 0 0 1.80 2 0 0 0 1.4 2.8 46000
`

func TestReadRingRadii(t *testing.T) {
	radii, err := ReadRingRadii(strings.NewReader(hkls))
	if err != nil {
		t.Fatalf("ReadRingRadii: %v", err)
	}
	if len(radii) != 2 || radii[1] != 40000 || radii[2] != 46000 {
		t.Errorf("radii=%v; want map[1:40000 2:46000]", radii)
	}
	if _, err := ReadRingRadii(strings.NewReader("header\n1 2 3\n")); err == nil {
		t.Errorf("short line: err=nil; want error")
	}
}

func TestRings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hkls.csv"), []byte(hkls), 0666); err != nil {
		t.Fatal(err)
	}
	p := NewParamsDefault()
	p.Folder = dir
	p.Px = 200
	p.RingThresh = []RingThresh{{2, 100}, {1, 50}}
	rings, err := p.Rings()
	if err != nil {
		t.Fatalf("Rings: %v", err)
	}
	if len(rings) != 2 || rings[0].RadiusPx != 230 || rings[1].RadiusPx != 200 || rings[0].Threshold != 100 {
		t.Errorf("rings=%+v", rings)
	}

	p.RingThresh = append(p.RingThresh, RingThresh{7, 1})
	if _, err := p.Rings(); !errors.Is(err, ErrMissingKey) {
		t.Errorf("unknown ring err=%v; want ErrMissingKey", err)
	}
}

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
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const textParams = `# peak search
NrPixels 2048
BC 1022.5 1023.25
px 200
Lsd 1000000
tx 0.1
RingThresh 1 80
RingThresh 2 120
OmegaRange -180 0
OmegaRange 10 20
ImTransOpt 0
ImTransOpt 2
BadPxIntensity -1
FrameOmeChange 900 0.5 -1
FileStem ff
Padding 4
Ext .ge3
RawFolder /data
Folder /out
LayerNr 2
UnknownKey 1 2 3
UseMaximaPositions 1
`

func TestRead(t *testing.T) {
	p, err := Read(strings.NewReader(textParams))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if p.NrPixels != 2048 || p.Ycen != 1022.5 || p.Zcen != 1023.25 {
		t.Errorf("NrPixels=%d BC=%g,%g; want 2048 1022.5,1023.25", p.NrPixels, p.Ycen, p.Zcen)
	}
	if len(p.RingThresh) != 2 || p.RingThresh[1] != (RingThresh{2, 120}) {
		t.Errorf("RingThresh=%v; want [{1 80} {2 120}]", p.RingThresh)
	}
	if len(p.OmegaRanges) != 2 || p.OmegaRanges[1] != (OmegaRange{10, 20}) {
		t.Errorf("OmegaRanges=%v", p.OmegaRanges)
	}
	if len(p.ImTransOpt) != 2 || p.ImTransOpt[1] != 2 {
		t.Errorf("ImTransOpt=%v; want [0 2]", p.ImTransOpt)
	}
	if !p.MaskBadPx || p.BadPxIntensity != -1 {
		t.Errorf("MaskBadPx=%v BadPxIntensity=%g; want true -1", p.MaskBadPx, p.BadPxIntensity)
	}
	if p.FrameNrOmeChange != 900 || p.OmegaMissing != 0.5 || p.MisDir != -1 {
		t.Errorf("FrameOmeChange=%d %g %g; want 900 0.5 -1", p.FrameNrOmeChange, p.OmegaMissing, p.MisDir)
	}
	if !p.UseMaximaPositions {
		t.Errorf("UseMaximaPositions=false; want true")
	}
	// defaults survive
	if p.MaxNPeaks != 400 || p.MinNrPx != 1 || p.MaxNrPx != 10000 || !math.IsInf(p.UpperBoundThreshold, 1) {
		t.Errorf("defaults MaxNPeaks=%d MinNrPx=%d MaxNrPx=%d UpperBound=%g", p.MaxNPeaks, p.MinNrPx, p.MaxNrPx, p.UpperBoundThreshold)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if got, want := p.RawFileName(17), filepath.Join("/data", "ff_0017.ge3"); got != want {
		t.Errorf("RawFileName=%s; want %s", got, want)
	}
	if got, want := p.PeakTableName(3), filepath.Join("/out", "Temp", "ff_2_0003_PS.csv"); got != want {
		t.Errorf("PeakTableName=%s; want %s", got, want)
	}
}

func TestReadMalformed(t *testing.T) {
	_, err := Read(strings.NewReader("NrPixels abc\n"))
	if err == nil {
		t.Fatalf("Read malformed: err=nil; want error")
	}
	_, err = Read(strings.NewReader("BC 12\n"))
	if err == nil {
		t.Fatalf("Read short BC: err=nil; want error")
	}
}

func TestValidate(t *testing.T) {
	p := NewParamsDefault()
	if err := p.Validate(); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Validate empty err=%v; want ErrMissingKey", err)
	}
	p.NrPixels = 16
	p.DoFullImage = true
	p.RingThresh = []RingThresh{{1, 10}}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate full image: %v", err)
	}
	p.ImTransOpt = []int{5}
	if err := p.Validate(); err == nil {
		t.Errorf("Validate ImTransOpt=5: err=nil; want error")
	}
}

func TestReadYAML(t *testing.T) {
	const y = `
NrPixels: 64
Ycen: 10
Zcen: 12
RingThresh:
  - {ringNr: 1, threshold: 50}
OmegaRange:
  - {min: -10, max: 10}
MaxNPeaks: 5
`
	p, err := ReadYAML(strings.NewReader(y))
	if err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}
	if p.NrPixels != 64 || p.Ycen != 10 || p.Zcen != 12 || p.MaxNPeaks != 5 {
		t.Errorf("got %d %g %g %d; want 64 10 12 5", p.NrPixels, p.Ycen, p.Zcen, p.MaxNPeaks)
	}
	if len(p.RingThresh) != 1 || p.RingThresh[0].Threshold != 50 {
		t.Errorf("RingThresh=%v", p.RingThresh)
	}
	if p.MinNrPx != 1 || p.OverlapLength != 2 {
		t.Errorf("defaults MinNrPx=%d OverlapLength=%g; want 1 2", p.MinNrPx, p.OverlapLength)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "ps.txt")
	if err := os.WriteFile(fn, []byte(textParams), 0666); err != nil {
		t.Fatal(err)
	}
	p, err := ReadFile(fn)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if p.FileName != fn {
		t.Errorf("FileName=%s; want %s", p.FileName, fn)
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Errorf("ReadFile missing: err=nil; want error")
	}
}

func TestOmega(t *testing.T) {
	p := NewParamsDefault()
	p.OmegaFirstFile = -180
	p.OmegaStep = 0.25
	p.FrameNrOmeChange = 1 << 30
	tests := []struct {
		frameNr int
		want    float64
	}{
		{0, -179.75},
		{3, -179},
	}
	for _, tt := range tests {
		if got := p.Omega(tt.frameNr, 10); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Omega(%d)=%g; want %g", tt.frameNr, got, tt.want)
		}
	}

	p.FrameNrOmeChange, p.OmegaMissing, p.MisDir = 2, 1, -1
	if got, want := p.Omega(3, 10), -180+4*0.25-2.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Omega with missing steps=%g; want %g", got, want)
	}

	p.FileOmegaOmeStep = []FileOmega{{0, 1}, {100, 2}}
	if got, want := p.Omega(13, 10), 106.0; got != want {
		t.Errorf("Omega per file=%g; want %g", got, want)
	}
}

func TestKeepOmega(t *testing.T) {
	p := NewParamsDefault()
	p.OmegaRanges = []OmegaRange{{-10, 0}, {5, 6}}
	for _, tt := range []struct {
		omega float64
		want  bool
	}{{-10, true}, {0, true}, {2, false}, {5.5, true}, {7, false}} {
		if got := p.KeepOmega(tt.omega); got != tt.want {
			t.Errorf("KeepOmega(%g)=%v; want %v", tt.omega, got, tt.want)
		}
	}
}

func TestUnmarshalJSONDefaults(t *testing.T) {
	var p Params
	data := `{"NrPixels":2048,"RingThresh":[{"RingNr":1,"Threshold":80}],"OmegaRange":[{"Min":-180,"Max":180}],"BadPxIntensity":-2}`
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatal(err)
	}
	if p.NrPixels != 2048 || len(p.RingThresh) != 1 || p.RingThresh[0].Threshold != 80 || len(p.OmegaRanges) != 1 {
		t.Errorf("p=%+v", p)
	}
	if p.MaxNPeaks != 400 || p.Padding != 6 || !math.IsInf(p.UpperBoundThreshold, 1) {
		t.Errorf("defaults MaxNPeaks=%d Padding=%d UpperBoundThreshold=%g", p.MaxNPeaks, p.Padding, p.UpperBoundThreshold)
	}
	if !p.MaskBadPx {
		t.Errorf("MaskBadPx=false; want true")
	}
}

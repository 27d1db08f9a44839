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

package rest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/hedmpeaks/internal/params"
	"github.com/mlnoga/hedmpeaks/internal/peaks"
	"github.com/mlnoga/hedmpeaks/internal/table"
)

func request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	NewRouter().ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	w := request(t, http.MethodGet, "/api/v1/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestIsPathAllowed(t *testing.T) {
	for _, tt := range []struct {
		path string
		want bool
	}{{"ps.txt", true}, {"data/ps.txt", true}, {"/etc/passwd", false}, {"../ps.txt", false}} {
		if got := isPathAllowed(tt.path); got != tt.want {
			t.Errorf("isPathAllowed(%q)=%v; want %v", tt.path, got, tt.want)
		}
	}
}

func TestPostPeaksRejects(t *testing.T) {
	if w := request(t, http.MethodPost, "/api/v1/peaks", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing job: code=%d; want 400", w.Code)
	}
	body := `{"peakSearch":{"paramFile":"/etc/ps.txt","nFrames":10}}`
	if w := request(t, http.MethodPost, "/api/v1/peaks", body); w.Code != http.StatusBadRequest {
		t.Errorf("absolute path: code=%d; want 400", w.Code)
	}
}

func TestPostMerge(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	p := params.NewParamsDefault()
	p.Folder = "out"
	p.FileStem = "scan"
	p.StartNr, p.EndNr = 1, 2
	if err := os.MkdirAll(p.TempFolder(), 0777); err != nil {
		t.Fatal(err)
	}
	spots := []peaks.Spot{{IntegratedIntensity: 10, YCen: 5, ZCen: 5}}
	for nr := 1; nr <= 2; nr++ {
		if err := table.WriteFile(p.PeakTableName(nr), float64(nr), spots); err != nil {
			t.Fatal(err)
		}
	}

	body := `{"params":{"Folder":"out","FileStem":"scan","StartNr":1,"EndNr":2}}`
	w := request(t, http.MethodPost, "/api/v1/merge", body)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "into 1 spots") {
		t.Errorf("body=%q; want one merged spot", w.Body.String())
	}
	if _, err := os.Stat(p.MergedTableName()); err != nil {
		t.Errorf("merged table: %v", err)
	}
}

func TestPostPeaksConcurrentWorkers(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	const n = 16
	p := params.NewParamsDefault()
	p.RawFolder, p.FileStem, p.Ext, p.HeadSize = "raw", "scan", ".raw", 64
	if err := os.MkdirAll(p.RawFolder, 0777); err != nil {
		t.Fatal(err)
	}
	// two empty uint16 frames per file
	for nr := 1; nr <= 4; nr++ {
		if err := os.WriteFile(p.RawFileName(nr), make([]byte, p.HeadSize+2*n*n*2), 0666); err != nil {
			t.Fatal(err)
		}
	}

	body := `{"peakSearch":{"params":{"NrPixels":16,"DoFullImage":true,"RingThresh":[{"RingNr":1,"Threshold":50}],
		"RawFolder":"raw","Folder":"out","FileStem":"scan","Ext":".raw","HeadSize":64,"StartFileNr":1,
		"OmegaStep":0.25,"OmegaRange":[{"Min":-180,"Max":180}]},"nFrames":8,"numProcs":4},"maxThreads":4}`
	w := request(t, http.MethodPost, "/api/v1/peaks", body)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	out := w.Body.String()
	for f := 0; f < 8; f++ {
		if c := strings.Count(out, fmt.Sprintf("\n%d: omega ", f)); c != 1 {
			t.Errorf("frame %d: %d log lines; want 1. body=%q", f, c, out)
		}
	}
	if !strings.Contains(out, "Processed 8 of 8 frames") {
		t.Errorf("body=%q; want 8 processed frames", out)
	}
}

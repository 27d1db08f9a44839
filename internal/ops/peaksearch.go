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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cheggaaa/pb"

	"github.com/mlnoga/hedmpeaks/internal/detector"
	"github.com/mlnoga/hedmpeaks/internal/frame"
	"github.com/mlnoga/hedmpeaks/internal/params"
	"github.com/mlnoga/hedmpeaks/internal/peaks"
	"github.com/mlnoga/hedmpeaks/internal/table"
)

// Per-frame recoverable errors. The frame is skipped and the job continues
var (
	ErrOmegaOutOfRange = errors.New("omega outside all keep ranges")
	ErrFrameUnreadable = errors.New("frame unreadable")
)

// A peak search over one block of frames. Frames count from 0 across all raw files of the scan.
type PeakSearch struct {
	ParamFile string         `json:"paramFile"`
	Params    *params.Params `json:"params,omitempty"` // used instead of ParamFile if given
	BlockNr   int            `json:"blockNr"`
	NBlocks   int            `json:"nBlocks"`
	NFrames   int            `json:"nFrames"`
	NumProcs  int            `json:"numProcs"` // 0 for the context's thread limit
	Preview   string         `json:"preview"`  // optional JPEG file pattern, %d is the output file number
}

func NewPeakSearchDefaults() *PeakSearch { return NewPeakSearch("", 0, 1, 0, 0) }

func NewPeakSearch(paramFile string, blockNr, nBlocks, nFrames, numProcs int) *PeakSearch {
	return &PeakSearch{
		ParamFile: paramFile,
		BlockNr:   blockNr,
		NBlocks:   nBlocks,
		NFrames:   nFrames,
		NumProcs:  numProcs,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (ps *PeakSearch) UnmarshalJSON(data []byte) error {
	type defaults PeakSearch
	def := defaults(*NewPeakSearchDefaults())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*ps = PeakSearch(def)
	return nil
}

// Read-only state of a prepared peak search, shared by all workers
type Job struct {
	Params        *params.Params
	Cal           *peaks.Calibration
	Cfg           *peaks.Config
	Reader        frame.Reader
	FramesPerFile int
	Frames        Range // frames of this block
	Preview       string
}

// Loads parameters, ring table and reference frames, and builds the good coordinate map.
// All errors are setup errors.
func (ps *PeakSearch) Prepare(c *Context) (*Job, error) {
	p := ps.Params
	if p == nil {
		var err error
		if p, err = params.ReadFile(ps.ParamFile); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.OmegaRanges) == 0 {
		return nil, fmt.Errorf("%w: at least one OmegaRange is required", params.ErrMissingKey)
	}
	frames, err := BlockRange(ps.NFrames, ps.NBlocks, ps.BlockNr)
	if err != nil {
		return nil, err
	}

	n := p.NrPixels
	transOpts, err := detector.TransOpts(p.ImTransOpt)
	if err != nil {
		return nil, err
	}
	pt, err := frame.ParsePixelType(p.DataType)
	if err != nil {
		return nil, err
	}
	rings, err := p.Rings()
	if err != nil {
		return nil, err
	}
	for _, r := range rings {
		fmt.Fprintf(c.Log, "Ring %d: radius %.2f px, threshold %g\n", r.Nr, r.RadiusPx, r.Threshold)
	}
	goodCoords, nrCoords := p.Geometry().GoodCoords(rings, p.WidthPx(), p.DoFullImage)
	fmt.Fprintf(c.Log, "Number of coordinates to analyze: %d of %d\n", nrCoords, n*n)

	dark, err := frame.LoadDark(p.Dark, n, pt, transOpts, c.Log)
	if err != nil {
		return nil, err
	}
	flood, err := frame.LoadFlood(p.Flood, n, c.Log)
	if err != nil {
		return nil, err
	}
	cal := &peaks.Calibration{
		N:           n,
		Dark:        dark,
		Flood:       flood,
		GoodCoords:  goodCoords,
		BeamCurrent: p.BeamCurrent,
		TransOpts:   transOpts,
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	reader, err := frame.NewReader(p.Ext, frame.Options{
		NrPixels:  n,
		HeadSize:  p.HeadSize,
		PixelType: pt,
		MaskBadPx: p.MaskBadPx,
		BadPx:     p.BadPxIntensity,
	})
	if err != nil {
		return nil, err
	}
	firstFile := p.RawFileName(p.StartFileNr)
	framesPerFile, err := reader.NumFrames(firstFile)
	if err != nil {
		return nil, fmt.Errorf("could not read the input file %s: %w", firstFile, err)
	}
	if framesPerFile < 1 {
		return nil, fmt.Errorf("input file %s holds no full frame", firstFile)
	}

	fitter := peaks.NewFitterDefault()
	fitter.MaxTime = p.FitTimeout()
	return &Job{
		Params: p,
		Cal:    cal,
		Cfg: &peaks.Config{
			Ycen:                p.Ycen,
			Zcen:                p.Zcen,
			MinNrPx:             p.MinNrPx,
			MaxNrPx:             p.MaxNrPx,
			MaxNPeaks:           p.MaxNPeaks,
			UpperBoundThreshold: p.UpperBoundThreshold,
			Fitter:              fitter,
		},
		Reader:        reader,
		FramesPerFile: framesPerFile,
		Frames:        frames,
		Preview:       ps.Preview,
	}, nil
}

// Result of processing one frame
type FrameResult struct {
	FrameNr int
	Omega   float64
	Stats   peaks.RegionStats
	Spots   int
}

// Reads, corrects and fits one frame with the given workspace, and writes its peak table.
// Returns ErrOmegaOutOfRange or ErrFrameUnreadable, possibly wrapped, for frames to skip.
// Other errors are fatal.
func (j *Job) ProcessFrame(ws *peaks.Workspace, frameNr int, c *Context) (res FrameResult, err error) {
	p := j.Params
	res.FrameNr = frameNr
	res.Omega = p.Omega(frameNr, j.FramesPerFile)
	if !p.KeepOmega(res.Omega) {
		return res, fmt.Errorf("%d: %w: %g", frameNr, ErrOmegaOutOfRange, res.Omega)
	}

	fileName := p.RawFileName(p.StartFileNr + frameNr/j.FramesPerFile)
	if err := j.Reader.ReadFrame(fileName, frameNr%j.FramesPerFile, ws.Raw); err != nil {
		return res, fmt.Errorf("%d: %w: %v", frameNr, ErrFrameUnreadable, err)
	}

	spots := ws.FindPeaks()
	res.Stats, res.Spots = ws.Stats, len(spots)

	outNr := frameNr + p.StartNr
	outName := p.PeakTableName(outNr)
	if err := table.WriteFile(outName, res.Omega, spots); err != nil {
		return res, fmt.Errorf("%d: writing %s: %w", frameNr, outName, err)
	}
	if j.Preview != "" {
		previewName := j.Preview
		if strings.Contains(previewName, "%") {
			previewName = fmt.Sprintf(j.Preview, outNr)
		}
		if err := WritePreviewToFile(previewName, ws.Image, ws.Labeler.Labels, j.Cal.N, 95); err != nil {
			return res, fmt.Errorf("%d: writing preview %s: %w", frameNr, previewName, err)
		}
	}
	fmt.Fprintf(c.Log, "%d: omega %.4f, %d regions, %d fitted, %d small, %d large, %d saturated, %d peaks in %s\n",
		frameNr, res.Omega, res.Stats.Regions, res.Stats.Fitted, res.Stats.Small, res.Stats.Large,
		res.Stats.Saturated, res.Spots, outName)
	return res, nil
}

// Processes all frames of the job's block. Each worker owns a workspace allocated before the
// parallel section and works through a contiguous chunk of frames.
func (j *Job) Run(c *Context, numProcs int) (*Summary, error) {
	start := time.Now()
	wc := *c
	wc.Log = SyncWriter(c.Log)
	c = &wc
	if err := os.MkdirAll(j.Params.TempFolder(), 0777); err != nil {
		return nil, err
	}
	if numProcs <= 0 {
		numProcs = c.MaxThreads
	}
	chunks := j.Frames.Split(numProcs)
	nWorkers := c.Workers(len(chunks), peaks.WorkspaceBytes(j.Cal.N))
	fmt.Fprintf(c.Log, "Processing frames %v with %d chunks on %d workers\n", j.Frames, len(chunks), nWorkers)

	workspaces := make(chan *peaks.Workspace, nWorkers)
	for i := 0; i < nWorkers; i++ {
		workspaces <- peaks.NewWorkspace(j.Cal, j.Cfg)
	}

	var bar *pb.ProgressBar
	if c.Progress {
		bar = pb.New(j.Frames.Len())
		bar.ShowSpeed = true
		bar.Start()
	}

	sum := newSummaryCollector(j.Frames.Len())
	tasks := make([]Task, len(chunks))
	for i, chunk := range chunks {
		chunk := chunk
		tasks[i] = func() error {
			ws := <-workspaces
			defer func() { workspaces <- ws }()
			for frameNr := chunk.Start; frameNr < chunk.End; frameNr++ {
				res, err := j.ProcessFrame(ws, frameNr, c)
				if bar != nil {
					bar.Increment()
				}
				switch {
				case errors.Is(err, ErrOmegaOutOfRange):
					sum.skipOmega()
				case errors.Is(err, ErrFrameUnreadable):
					fmt.Fprintf(c.Log, "Could not read the input file, skipping. %v\n", err)
					sum.skipUnreadable()
				case err != nil:
					return err
				default:
					sum.add(&res)
				}
			}
			return nil
		}
	}
	err := RunAll(tasks, nWorkers)
	if bar != nil {
		bar.Finish()
	}
	s := sum.summary(time.Since(start))
	fmt.Fprintf(c.Log, "%v\n", s)
	return s, err
}

// Prepares and runs the peak search
func (ps *PeakSearch) Apply(c *Context) (*Summary, error) {
	job, err := ps.Prepare(c)
	if err != nil {
		return nil, err
	}
	return job.Run(c, ps.NumProcs)
}

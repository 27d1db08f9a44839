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

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	nl "github.com/mlnoga/hedmpeaks/internal"
	"github.com/mlnoga/hedmpeaks/internal/merge"
	"github.com/mlnoga/hedmpeaks/internal/ops"
	"github.com/mlnoga/hedmpeaks/internal/params"
	"github.com/mlnoga/hedmpeaks/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of the parameter file with .log")
var progress = flag.Bool("progress", false, "show a progress bar over frames")
var preview = flag.String("preview", "", "save JPEG previews of labeled regions with given filename pattern, e.g. `regions%06d.jpg`")
var threads = flag.Int("threads", 0, "limit on concurrent workers, 0=number of CPUs")
var port = flag.Int("port", 8080, "port to serve the REST API on")
var chroot = flag.String("chroot", "", "chroot to the given directory before serving")
var setuid = flag.Int("setuid", -1, "change to the given user id before serving, -1=don't")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `HEDM peaks Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (peaks|merge|serve|legal|version) [args]

Commands:
  peaks   params.txt blockNr nBlocks nFrames numProcs
          Find and fit peaks in frames of the given block, writing one peak table per frame
  merge   params.txt
          Merge the peak tables of frames StartNr to EndNr into spots spanning several frames
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if (args[0] == "peaks" || args[0] == "merge") && len(args) > 1 {
			*log = strings.TrimSuffix(args[1], filepath.Ext(args[1])) + "_" + args[0] + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "peaks":
		err = cmdPeaks(args[1:])

	case "merge":
		err = cmdMerge(args[1:])

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err == nil {
			err = rest.Serve(fmt.Sprintf(":%d", *port))
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		pprof.StopCPUProfile()
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	nl.LogSync()
}

func cmdPeaks(args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("peaks needs 5 arguments: params.txt blockNr nBlocks nFrames numProcs, got %d", len(args))
	}
	nums := make([]int, 4)
	for i, a := range args[1:] {
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+2, err)
		}
		nums[i] = n
	}

	c := ops.NewContext(nl.LogWriter())
	if *threads > 0 && *threads < c.MaxThreads {
		c.MaxThreads = *threads
	}
	c.Progress = *progress
	c.LogSystem()

	ps := ops.NewPeakSearch(args[0], nums[0], nums[1], nums[2], nums[3])
	ps.Preview = *preview
	_, err := ps.Apply(c)
	return err
}

func cmdMerge(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("merge needs 1 argument: params.txt, got %d", len(args))
	}
	p, err := params.ReadFile(args[0])
	if err != nil {
		return err
	}
	_, err = merge.Run(p, nl.LogWriter())
	return err
}

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

// Package ops runs peak search jobs over blocks of frames with a pool of workers.
package ops

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// An execution context for jobs. Log is written by all frame workers of a job.
// NewContext and Job.Run wrap it with SyncWriter, so the underlying writer, e.g. an HTTP
// response, need not be safe for concurrent use.
type Context struct {
	Log          io.Writer
	MemoryMB     int  // memory.TotalMemory()/1024/1024
	WorkMemoryMB int  // MemoryMB*7/10, budget for worker buffers
	MaxThreads   int  `json:"maxThreads"`
	Progress     bool `json:"progress"` // show a progress bar over frames
}

func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:          SyncWriter(log),
		MemoryMB:     memoryMB,
		WorkMemoryMB: memoryMB * 7 / 10,
		MaxThreads:   runtime.GOMAXPROCS(0),
	}
}

// Serializes writes to a writer shared by several workers
type syncWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.w.Write(p)
}

// Returns a writer which serializes writes to w. Writers returned by SyncWriter are passed through
func SyncWriter(w io.Writer) io.Writer {
	if _, ok := w.(*syncWriter); ok {
		return w
	}
	return &syncWriter{w: w}
}

// Logs CPU and memory of the machine
func (c *Context) LogSystem() {
	fmt.Fprintf(c.Log, "Running on %s with %d physical cores, %d logical cores, %d threads and %d MiB of memory.\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, c.MaxThreads, c.MemoryMB)
}

// Number of workers which fit the thread limit and the memory budget, given the bytes per worker
func (c *Context) Workers(requested int, bytesPerWorker int64) int {
	n := requested
	if n <= 0 || n > c.MaxThreads {
		n = c.MaxThreads
	}
	if c.WorkMemoryMB > 0 && bytesPerWorker > 0 {
		byMem := int(int64(c.WorkMemoryMB) * 1024 * 1024 / bytesPerWorker)
		if byMem < n {
			fmt.Fprintf(c.Log, "Limiting workers from %d to %d to fit into %d MiB of memory.\n", n, byMem, c.WorkMemoryMB)
			n = byMem
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// A unit of work, such as a contiguous range of frames
type Task func() error

// Runs all tasks with given concurrency limit, and returns their errors joined
func RunAll(tasks []Task, maxThreads int) (err error) {
	if len(tasks) == 0 {
		return nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(tasks))
	for _, task := range tasks {
		limiter <- true
		go func(theTask Task) {
			defer func() { <-limiter }()
			errs <- theTask()
		}(task)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	var all []error
	for i := 0; i < len(tasks); i++ { // collect errors
		if e := <-errs; e != nil {
			all = append(all, e)
		}
	}
	return errors.Join(all...)
}

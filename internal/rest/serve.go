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

// Package rest serves peak search and merge jobs over HTTP, streaming the job log as plain text.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/hedmpeaks/internal/merge"
	"github.com/mlnoga/hedmpeaks/internal/ops"
	"github.com/mlnoga/hedmpeaks/internal/params"
)

// Creates the router with all API routes
func NewRouter() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/peaks", postPeaks)
			v1.POST("/merge", postMerge)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string) error {
	return NewRouter().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	} // relative paths only
	if strings.Contains(p, "..") {
		return false
	} // no going outside the tree
	return true
}

// Checks every file and folder named by a job against isPathAllowed
func checkPaths(p *params.Params, paramFile string) error {
	names := []string{paramFile}
	if p != nil {
		names = append(names, p.RawFolder, p.Folder, p.Dark, p.Flood)
	}
	for _, name := range names {
		if name != "" && !isPathAllowed(name) {
			return errors.New("path outside current directory tree, aborting")
		}
	}
	return nil
}

// Switches the response to a streamed plain text log
func startLog(c *gin.Context) gin.ResponseWriter {
	logWriter := c.Writer
	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)
	return logWriter
}

type postPeaksArgs struct {
	PeakSearch *ops.PeakSearch `json:"peakSearch" binding:"required"`
	MaxThreads int             `json:"maxThreads"`
}

func postPeaks(c *gin.Context) {
	var args postPeaksArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := checkPaths(args.PeakSearch.Params, args.PeakSearch.ParamFile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.PeakSearch.Preview != "" && !isPathAllowed(args.PeakSearch.Preview) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preview path outside current directory tree, aborting"})
		return
	}
	logWriter := startLog(c)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error()) // e.g. infinite thresholds, not fatal
	}

	ctx := ops.NewContext(logWriter)
	if args.MaxThreads > 0 && args.MaxThreads < ctx.MaxThreads {
		ctx.MaxThreads = args.MaxThreads
	}
	if _, err := args.PeakSearch.Apply(ctx); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

type postMergeArgs struct {
	ParamFile string         `json:"paramFile"`
	Params    *params.Params `json:"params,omitempty"` // used instead of ParamFile if given
}

func postMerge(c *gin.Context) {
	var args postMergeArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.ParamFile == "" && args.Params == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paramFile or params required"})
		return
	}
	if err := checkPaths(args.Params, args.ParamFile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logWriter := startLog(c)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error()) // e.g. infinite thresholds, not fatal
	}

	p := args.Params
	if p == nil {
		var err error
		if p, err = params.ReadFile(args.ParamFile); err != nil {
			fmt.Fprintf(logWriter, "error: %s\n", err.Error())
			logWriter.(http.Flusher).Flush()
			return
		}
	}
	if _, err := merge.Run(p, logWriter); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Serves correlation surfaces and rankings over a directory of run
// checkpoints. Readers never touch a live grid: they see settled
// snapshots only, refreshed whenever the scheduler writes a new one.
package main

import (
	"flag"
	"fmt"
	"math"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo"

	cpa "github.com/courk/esp-cpa"
	"github.com/courk/esp-cpa/util"
)

var (
	portFlag = flag.Int("port", 8080, "Server HTTP port number")
	dirFlag  = flag.String("dir", "checkpoints", "Checkpoint directory to display")
)

const ckptExt = ".ckpt.gz"

func init() {
	flag.Parse()
}

// A go-routine that waits for directory changes.
// Notifies changes by publishing a message via broker.
func watchDirectoryChanges(broker *util.Broker[fsnotify.Event]) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	if err = watcher.Add(*dirFlag); err != nil {
		glog.Errorf("watcher.Add failed: %v", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("watcher.Events is not ok. Aborting")
				return
			}
			glog.V(1).Infof("Watcher event: %v", event)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 &&
				strings.HasSuffix(event.Name, ckptExt) {
				broker.Publish(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("watcher.Errors is not ok. Aborting")
				return
			}
			glog.Warningf("Watcher error: %v", err)
		}
	}
}

// Long-polls until the checkpoint directory changes, the client leaves,
// or the poll times out.
func waitForCheckpoints(c echo.Context, watcher *util.Broker[fsnotify.Event]) {
	var wg sync.WaitGroup
	timedOut := time.NewTimer(5 * time.Minute)
	defer timedOut.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dirChanged := watcher.Subscribe()
		defer watcher.Unsubscribe(dirChanged)

		select {
		case <-timedOut.C:
			glog.V(1).Infof("Timed out")
		case <-c.Request().Context().Done():
			glog.V(1).Infof("Client disconnected")
		case <-dirChanged:
			glog.V(1).Infof("Received dir notification from broker")
		}
	}()

	wg.Wait()
}

func loadGrid(name string) (*cpa.Grid, error) {
	return cpa.LoadCheckpoint(path.Join(*dirFlag, name+ckptExt))
}

// Undefined cells are NaN in the extracted surface, which JSON cannot
// carry; they are serialized as null instead.
func surfaceRows(g *cpa.Grid) [][]*float64 {
	m := cpa.Extract(g)
	rows := make([][]*float64, g.NumGuesses())
	for gi := 0; gi < g.NumGuesses(); gi++ {
		row := make([]*float64, g.NumSamples())
		for s := 0; s < g.NumSamples(); s++ {
			if v := m.At(gi, s); !math.IsNaN(v) {
				v := v
				row[s] = &v
			}
		}
		rows[gi] = row
	}
	return rows
}

func main() {
	defer glog.Flush()

	watchBroker := util.NewBroker[fsnotify.Event]()
	go watchBroker.Start()
	go watchDirectoryChanges(watchBroker)

	e := echo.New()

	// Returns list of checkpoint files in directory.
	e.GET("/checkpoints", func(c echo.Context) error {
		if c.QueryParam("wait") != "false" {
			waitForCheckpoints(c, watchBroker)
		}
		files, err := filepath.Glob(path.Join(*dirFlag, "*"+ckptExt))
		if err != nil {
			glog.Errorf("Glob failed: %v", err)
			return err
		}
		for i, f := range files {
			files[i] = strings.TrimSuffix(filepath.Base(f), ckptExt)
		}
		return c.JSON(http.StatusOK, files)
	})

	// Returns the correlation surface of a single checkpoint.
	e.GET("/correlation/:checkpoint", func(c echo.Context) error {
		grid, err := loadGrid(c.Param("checkpoint"))
		if err != nil {
			glog.Errorf("Error loading checkpoint: %v", err)
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"n_guesses": grid.NumGuesses(),
			"n_samples": grid.NumSamples(),
			"n_traces":  grid.Count(),
			"corr":      surfaceRows(grid),
		})
	})

	// Returns the guess ranking of a single checkpoint. Assumes the
	// canonical byte guess space.
	e.GET("/ranking/:checkpoint", func(c echo.Context) error {
		grid, err := loadGrid(c.Param("checkpoint"))
		if err != nil {
			glog.Errorf("Error loading checkpoint: %v", err)
			return err
		}
		if grid.NumGuesses() > 256 {
			return c.String(http.StatusInternalServerError, "Guess space too large")
		}
		ranking, err := cpa.Rank(cpa.Extract(grid), cpa.AllByteGuesses()[:grid.NumGuesses()])
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, ranking)
	})

	glog.Fatal(e.Start(fmt.Sprintf(":%d", *portFlag)))
}

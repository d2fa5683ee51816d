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

// Recovers one key byte from a capture file using streaming correlation
// power analysis.
//
// $ go run ./cmd/attack -logtostderr -v=1 -config attack.toml -input captures/esp32_t50000.json.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"

	cpa "github.com/courk/esp-cpa"
	"github.com/courk/esp-cpa/util"
)

var (
	configFlag = flag.String("config", "attack.toml", "Attack configuration file")
	inputFlag  = flag.String("input", "", "Capture input file")
	resumeFlag = flag.String("resume", "", "Checkpoint file to resume from")
	marginFlag = flag.Float64("margin-threshold", 0.05,
		"Best-guess margin below which the attack is reported as inconclusive")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	cfg, err := cpa.LoadConfig(*configFlag)
	if err != nil {
		glog.Fatal(err)
	}
	model, err := cfg.NewModel()
	if err != nil {
		glog.Fatal(err)
	}

	capture, err := cpa.LoadCapture(*inputFlag)
	if err != nil {
		glog.Fatal(err)
	}
	source, err := cpa.NewCaptureSource(capture, cfg.ParseKnown())
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Loaded capture with %d traces / %d samples per trace",
		len(capture), source.NumSamples())

	guesses := cpa.AllByteGuesses()
	var grid *cpa.Grid
	if *resumeFlag != "" {
		if grid, err = cpa.LoadCheckpoint(*resumeFlag); err != nil {
			glog.Fatal(err)
		}
		glog.Infof("Resuming from %s (%d traces already accumulated)",
			*resumeFlag, grid.Count())
	} else {
		grid = cpa.NewGrid(len(guesses), source.NumSamples())
	}

	progress := util.NewBroker[cpa.Progress]()
	go progress.Start()
	defer progress.Stop()
	go func() {
		for p := range progress.Subscribe() {
			glog.V(1).Infof("Progress: batch %d, %d traces", p.Batch, p.Traces)
		}
	}()

	sched, err := cpa.NewScheduler(grid, source, cpa.NewParallelBackend(cfg.Workers),
		model, guesses, cpa.SchedulerOptions{
			BatchSize:       cfg.BatchSize,
			CheckpointPath:  cfg.Checkpoint,
			CheckpointEvery: cfg.CheckpointEvery,
			Progress:        progress,
		})
	if err != nil {
		glog.Fatal(err)
	}

	// SIGINT pauses at the next batch boundary and leaves a checkpoint.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err = sched.Run(ctx); err != nil {
		glog.Errorf("Run failed: %v", err)
		if sched.LastCheckpoint() != "" {
			glog.Errorf("Last good checkpoint: %s", sched.LastCheckpoint())
		}
		os.Exit(1)
	}

	if sched.State() == cpa.StatePaused {
		glog.Infof("Run paused; resume with -resume %s", sched.LastCheckpoint())
		return
	}

	ranking, err := cpa.Rank(cpa.Extract(sched.Grid()), guesses)
	if err != nil {
		glog.Fatal(err)
	}
	if len(ranking.Results) == 0 {
		glog.Fatal("No guess produced a defined correlation")
	}

	best := ranking.Best()
	glog.Infof("Best guess for index %d: %v", cfg.ByteIndex, best)
	if len(ranking.Results) > 1 && best.Margin < *marginFlag {
		glog.Warningf("Inconclusive attack: margin %f below threshold %f "+
			"(runner-up %v)", best.Margin, *marginFlag, ranking.Results[1])
	}
	fmt.Printf("byte %d: 0x%02x (corr %f at sample %d, margin %f)\n",
		cfg.ByteIndex, best.Guess, best.PeakCorrelation, best.PeakSample, best.Margin)
}

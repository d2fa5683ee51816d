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

// Merges checkpoints accumulated over disjoint trace ranges into one,
// e.g. after splitting a large capture across machines. The merge rule
// makes the combined grid equal to a single sequential run over all
// traces.
//
// $ go run ./cmd/mergeckpt -output combined.ckpt.gz part1.ckpt.gz part2.ckpt.gz
package main

import (
	"flag"

	"github.com/golang/glog"

	cpa "github.com/courk/esp-cpa"
)

var outputFlag = flag.String("output", "merged.ckpt.gz", "Merged checkpoint output file")

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	inputs := flag.Args()
	if len(inputs) < 2 {
		glog.Fatal("Need at least two checkpoint files to merge")
	}

	merged, err := cpa.LoadCheckpoint(inputs[0])
	if err != nil {
		glog.Fatal(err)
	}
	for _, input := range inputs[1:] {
		grid, err := cpa.LoadCheckpoint(input)
		if err != nil {
			glog.Fatal(err)
		}
		if err = merged.Merge(grid); err != nil {
			glog.Fatalf("Cannot merge %s: %v", input, err)
		}
		glog.V(1).Infof("Merged %s (%d traces)", input, grid.Count())
	}

	if err = merged.Checkpoint(*outputFlag); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Wrote merged checkpoint covering %d traces to %s",
		merged.Count(), *outputFlag)
}

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

// Writes a synthetic capture file with a known leaking key byte, for
// exercising the analysis pipeline without capture hardware.
package main

import (
	"flag"

	"github.com/golang/glog"

	cpa "github.com/courk/esp-cpa"
)

var (
	outputFlag  = flag.String("output", "synthetic.json.gz", "Capture output file")
	tracesFlag  = flag.Int("traces", 1000, "Number of traces")
	samplesFlag = flag.Int("samples", 32, "Samples per trace")
	leakFlag    = flag.Int("leak-sample", 7, "Sample index carrying the leakage")
	sigmaFlag   = flag.Float64("sigma", 0.5, "Noise standard deviation")
	seedFlag    = flag.Uint64("seed", 1, "Random seed")
	keyFlag     = flag.Int("key", 0x2b, "True key byte")
	indexFlag   = flag.Int("byte-index", 0, "Attacked key byte index")
	betaFlag    = flag.Float64("beta", 1, "Leakage model exponent")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	capture, err := cpa.NewSyntheticCapture(cpa.SyntheticConfig{
		Model:      cpa.NewRound0Model(*indexFlag, *betaFlag),
		TrueGuess:  byte(*keyFlag),
		NumTraces:  *tracesFlag,
		NumSamples: *samplesFlag,
		LeakSample: *leakFlag,
		NoiseSigma: *sigmaFlag,
		Seed:       *seedFlag,
	})
	if err != nil {
		glog.Fatal(err)
	}
	if err = capture.Save(*outputFlag); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Wrote %d traces / %d samples to %s",
		len(capture), *samplesFlag, *outputFlag)
}

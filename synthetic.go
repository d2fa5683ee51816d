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

// Deterministic synthetic trace source for known-answer testing.
package cpa

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// SyntheticConfig describes a simulated target: every trace carries
// Gaussian noise on all samples, with the model's leakage for the true
// key byte added at LeakSample. The same seed always reproduces the same
// trace stream.
type SyntheticConfig struct {
	Model      LeakageModel
	TrueGuess  byte
	NumTraces  int
	NumSamples int
	LeakSample int
	NoiseSigma float64
	Seed       uint64
	// Bytes of known data generated per trace. Defaults to 16.
	KnownLen int
}

type SyntheticSource struct {
	cfg   SyntheticConfig
	rng   *rand.Rand
	noise *distmv.Normal
	pos   int
}

func NewSyntheticSource(cfg SyntheticConfig) (*SyntheticSource, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("synthetic source needs a leakage model")
	}
	if cfg.NumSamples <= 0 || cfg.NumTraces <= 0 {
		return nil, fmt.Errorf("invalid synthetic dimensions %dx%d",
			cfg.NumTraces, cfg.NumSamples)
	}
	if cfg.LeakSample < 0 || cfg.LeakSample >= cfg.NumSamples {
		return nil, fmt.Errorf("leak sample %d out of range", cfg.LeakSample)
	}
	if cfg.KnownLen <= 0 {
		cfg.KnownLen = 16
	}
	if cfg.NoiseSigma <= 0 {
		cfg.NoiseSigma = 0.05
	}

	src := rand.NewSource(cfg.Seed)
	mu := make([]float64, cfg.NumSamples)
	sigma := mat.NewSymDense(cfg.NumSamples, nil)
	for i := 0; i < cfg.NumSamples; i++ {
		sigma.SetSym(i, i, cfg.NoiseSigma*cfg.NoiseSigma)
	}
	noise, ok := distmv.NewNormal(mu, sigma, src)
	if !ok {
		return nil, fmt.Errorf("cannot build noise distribution")
	}
	return &SyntheticSource{
		cfg:   cfg,
		rng:   rand.New(src),
		noise: noise,
	}, nil
}

func (s *SyntheticSource) NumSamples() int {
	return s.cfg.NumSamples
}

func (s *SyntheticSource) NextBatch(maxSize int) (*Batch, error) {
	remaining := s.cfg.NumTraces - s.pos
	if remaining == 0 {
		return nil, ErrSourceExhausted
	}
	n := remaining
	if maxSize > 0 && maxSize < n {
		n = maxSize
	}
	batch := &Batch{
		Known:   make([][]byte, n),
		Samples: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		known := make([]byte, s.cfg.KnownLen)
		for j := range known {
			known[j] = byte(s.rng.Intn(256))
		}
		samples := s.noise.Rand(nil)
		samples[s.cfg.LeakSample] += s.cfg.Model.Estimate(known, s.cfg.TrueGuess)
		batch.Known[i] = known
		batch.Samples[i] = samples
	}
	s.pos += n
	return batch, nil
}

// NewSyntheticCapture drains a fresh synthetic source into a capture,
// with the known data stored as plaintext and the true guess recorded as
// the key. Useful for exercising the capture-file pipeline end to end.
func NewSyntheticCapture(cfg SyntheticConfig) (Capture, error) {
	source, err := NewSyntheticSource(cfg)
	if err != nil {
		return nil, err
	}
	capture := make(Capture, 0, cfg.NumTraces)
	for {
		batch, err := source.NextBatch(0)
		if err == ErrSourceExhausted {
			return capture, nil
		}
		if err != nil {
			return nil, err
		}
		for i := 0; i < batch.Len(); i++ {
			capture = append(capture, Trace{
				Key:               []byte{cfg.TrueGuess},
				Pt:                batch.Known[i],
				PowerMeasurements: batch.Samples[i],
			})
		}
	}
}

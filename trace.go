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

// Power trace containers and streaming trace sources.
package cpa

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Normal end-of-stream signal from a TraceSource. Not an error condition.
var ErrSourceExhausted = errors.New("trace source exhausted")

// Trace is one measurement run: the power samples plus the known data
// (plaintext/ciphertext) needed to compute leakage hypotheses.
type Trace struct {
	Key               []byte    `json:"k"`
	Pt                []byte    `json:"pt"`
	Ct                []byte    `json:"ct"`
	PowerMeasurements []float64 `json:"pm"`
}

type Capture []Trace

// Exported for testing.
func LoadCaptureIo(src io.Reader) (Capture, error) {
	var capture Capture
	zipper, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip NewReader failed %v", err)
	}
	decoder := json.NewDecoder(zipper)
	if err = decoder.Decode(&capture); err != nil {
		return nil, fmt.Errorf("JSON decoder failed %v", err)
	}
	return capture, nil
}

// Loads capture from file.
func LoadCapture(filename string) (Capture, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Error opening capture file: %v", err)
	}
	defer f.Close()
	return LoadCaptureIo(f)
}

// Exported for testing.
func (c Capture) SaveIo(dst io.Writer) error {
	var err error
	zipper := gzip.NewWriter(dst)
	encoder := json.NewEncoder(zipper)
	if err = encoder.Encode(c); err != nil {
		return fmt.Errorf("JSON encoder failed %v", err)
	}
	if err = zipper.Close(); err != nil {
		return fmt.Errorf("gzip close failed %v", err)
	}
	return nil
}

func (c Capture) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("Error creating capture file: %v", err)
	}
	defer f.Close()
	return c.SaveIo(f)
}

// SamplesMatrix lays the capture out as one dense #traces x #samples
// matrix, one trace per row, for whole-capture math with gonum.
func (c Capture) SamplesMatrix() *mat.Dense {
	m := mat.NewDense(len(c), len(c[0].PowerMeasurements), nil)
	for i, t := range c {
		m.SetRow(i, t.PowerMeasurements)
	}
	return m
}

// Batch is a finite ordered run of traces applied to a grid as one atomic
// update. Known[t] is the known data of trace t, Samples[t] its power
// measurements. Batch boundaries are transparent to the final result.
type Batch struct {
	Known   [][]byte
	Samples [][]float64
}

// Number of traces in the batch.
func (b *Batch) Len() int {
	return len(b.Samples)
}

// TraceSource streams trace batches into a run. All traces of one run
// share a single declared sample count. NextBatch returns
// ErrSourceExhausted once the stream ends; it never returns an empty
// batch with a nil error.
type TraceSource interface {
	NumSamples() int
	NextBatch(maxSize int) (*Batch, error)
}

// Selects which part of a trace feeds the leakage hypothesis.
type KnownField int

const (
	KnownPlaintext KnownField = iota
	KnownCiphertext
)

// CaptureSource adapts an in-memory capture to the TraceSource contract.
type CaptureSource struct {
	capture    Capture
	field      KnownField
	numSamples int
	pos        int
}

// All traces in the capture must agree on the sample count.
func NewCaptureSource(capture Capture, field KnownField) (*CaptureSource, error) {
	if len(capture) == 0 {
		return nil, fmt.Errorf("capture is empty")
	}
	numSamples := len(capture[0].PowerMeasurements)
	for i, t := range capture {
		if len(t.PowerMeasurements) != numSamples {
			return nil, fmt.Errorf("trace %d has %d samples, expected %d",
				i, len(t.PowerMeasurements), numSamples)
		}
	}
	return &CaptureSource{capture: capture, field: field, numSamples: numSamples}, nil
}

func (s *CaptureSource) NumSamples() int {
	return s.numSamples
}

// maxSize <= 0 drains the remaining traces in one batch.
func (s *CaptureSource) NextBatch(maxSize int) (*Batch, error) {
	remaining := len(s.capture) - s.pos
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
		t := s.capture[s.pos+i]
		if s.field == KnownCiphertext {
			batch.Known[i] = t.Ct
		} else {
			batch.Known[i] = t.Pt
		}
		batch.Samples[i] = t.PowerMeasurements
	}
	s.pos += n
	return batch, nil
}

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

// Exact-round-trip snapshots of accumulator grid state.
//
// A checkpoint taken at a batch boundary can seed a resumed run whose
// future behavior is byte-identical to running straight through. The
// on-disk form follows the capture files: gzip'd JSON, with a blake2b-256
// digest over the payload so torn or corrupted snapshots fail loudly
// instead of poisoning a resumed run.
package cpa

import (
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	blake2b "github.com/minio/blake2b-simd"
)

const checkpointVersion = 1

type checkpointPayload struct {
	NumGuesses int    `json:"n_guesses"`
	NumSamples int    `json:"n_samples"`
	Count      int    `json:"n"`
	Cells      []Cell `json:"cells"`
}

type checkpointEnvelope struct {
	Version int             `json:"v"`
	Digest  string          `json:"digest"`
	Payload json.RawMessage `json:"payload"`
}

func WriteCheckpoint(dst io.Writer, g *Grid) error {
	payload, err := json.Marshal(checkpointPayload{
		NumGuesses: g.numGuesses,
		NumSamples: g.numSamples,
		Count:      g.count,
		Cells:      g.cells,
	})
	if err != nil {
		return fmt.Errorf("checkpoint encode failed: %v", err)
	}
	sum := blake2b.Sum256(payload)
	env := checkpointEnvelope{
		Version: checkpointVersion,
		Digest:  hex.EncodeToString(sum[:]),
		Payload: payload,
	}
	zipper := gzip.NewWriter(dst)
	if err = json.NewEncoder(zipper).Encode(&env); err != nil {
		return fmt.Errorf("checkpoint encode failed: %v", err)
	}
	if err = zipper.Close(); err != nil {
		return fmt.Errorf("gzip close failed: %v", err)
	}
	return nil
}

// Checkpoint snapshots the grid to a file. The snapshot is staged in a
// temp file and renamed into place, so a failed or interrupted write
// leaves any previous snapshot at filename intact.
func (g *Grid) Checkpoint(filename string) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("error creating checkpoint file: %v", err)
	}
	if err = WriteCheckpoint(f, g); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("checkpoint sync failed: %v", err)
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint close failed: %v", err)
	}
	return os.Rename(tmp, filename)
}

func ReadCheckpoint(src io.Reader) (*Grid, error) {
	zipper, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip NewReader failed: %v", err)
	}
	var env checkpointEnvelope
	if err = json.NewDecoder(zipper).Decode(&env); err != nil {
		return nil, fmt.Errorf("checkpoint decode failed: %v", err)
	}
	if env.Version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", env.Version)
	}
	sum := blake2b.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Digest {
		return nil, fmt.Errorf("checkpoint digest mismatch")
	}
	var payload checkpointPayload
	if err = json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("checkpoint decode failed: %v", err)
	}
	if len(payload.Cells) != payload.NumGuesses*payload.NumSamples {
		return nil, fmt.Errorf("corrupt checkpoint: %d cells for %dx%d grid",
			len(payload.Cells), payload.NumGuesses, payload.NumSamples)
	}
	for i := range payload.Cells {
		if payload.Cells[i].N != payload.Count {
			return nil, fmt.Errorf("corrupt checkpoint: cell %d has count %d, grid has %d",
				i, payload.Cells[i].N, payload.Count)
		}
	}
	return &Grid{
		numGuesses: payload.NumGuesses,
		numSamples: payload.NumSamples,
		count:      payload.Count,
		cells:      payload.Cells,
	}, nil
}

// LoadCheckpoint restores a grid snapshot from a file.
func LoadCheckpoint(filename string) (*Grid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening checkpoint file: %v", err)
	}
	defer f.Close()
	return ReadCheckpoint(f)
}

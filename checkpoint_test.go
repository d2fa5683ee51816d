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

package cpa

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	blake2b "github.com/minio/blake2b-simd"
)

func testGrid(t *testing.T, numTraces int) (*Grid, *Batch) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	batch := &Batch{}
	for i := 0; i < numTraces; i++ {
		batch.Known = append(batch.Known, []byte{byte(rng.Intn(256))})
		batch.Samples = append(batch.Samples,
			[]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()})
	}
	grid := NewGrid(4, 3)
	err := SequentialBackend{}.ApplyBatch(grid, batch, []byte{0, 1, 2, 3}, NewRound0Model(0, 1))
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	return grid, batch
}

func TestCheckpointRoundTrip(t *testing.T) {
	grid, batch := testGrid(t, 25)

	buf := bytes.Buffer{}
	if err := WriteCheckpoint(&buf, grid); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}
	loaded, err := ReadCheckpoint(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadCheckpoint failed: %v", err)
	}
	if !reflect.DeepEqual(grid, loaded) {
		t.Fatalf("loaded grid does not match original")
	}

	// Behaviorally identical too: applying the same batch to both must
	// leave them bit-for-bit equal.
	for _, g := range []*Grid{grid, loaded} {
		err = SequentialBackend{}.ApplyBatch(g, batch, []byte{0, 1, 2, 3}, NewRound0Model(0, 1))
		if err != nil {
			t.Fatalf("ApplyBatch after load failed: %v", err)
		}
	}
	if !reflect.DeepEqual(grid, loaded) {
		t.Fatalf("resumed grid diverged from original after identical batch")
	}
}

func TestCheckpointFailureKeepsPreviousSnapshot(t *testing.T) {
	grid, batch := testGrid(t, 25)
	path := filepath.Join(t.TempDir(), "run.ckpt.gz")
	if err := grid.Checkpoint(path); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	// Block the staging file so the next snapshot cannot be written, then
	// try to overwrite with an advanced grid.
	if err := os.Mkdir(path+".tmp", 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	err := SequentialBackend{}.ApplyBatch(grid, batch, []byte{0, 1, 2, 3}, NewRound0Model(0, 1))
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if err = grid.Checkpoint(path); err == nil {
		t.Fatal("Checkpoint succeeded with staging file blocked")
	}

	// The earlier snapshot must still load intact.
	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint after failed overwrite: %v", err)
	}
	if loaded.Count() != 25 {
		t.Errorf("surviving snapshot has count %d, want 25", loaded.Count())
	}
}

func reencode(t *testing.T, env checkpointEnvelope) []byte {
	t.Helper()
	buf := bytes.Buffer{}
	zipper := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zipper).Encode(&env); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := zipper.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return buf.Bytes()
}

func decodeEnvelope(t *testing.T, raw []byte) checkpointEnvelope {
	t.Helper()
	zipper, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("gzip NewReader failed: %v", err)
	}
	var env checkpointEnvelope
	if err = json.NewDecoder(zipper).Decode(&env); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return env
}

func TestCheckpointRejectsTamperedPayload(t *testing.T) {
	grid, _ := testGrid(t, 10)
	buf := bytes.Buffer{}
	if err := WriteCheckpoint(&buf, grid); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	env := decodeEnvelope(t, buf.Bytes())
	var payload checkpointPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	payload.Cells[0].C += 1
	tampered, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("payload encode failed: %v", err)
	}
	env.Payload = tampered

	_, err = ReadCheckpoint(bytes.NewReader(reencode(t, env)))
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Errorf("tampered checkpoint: got err %v, want digest mismatch", err)
	}
}

func TestCheckpointRejectsUnsupportedVersion(t *testing.T) {
	grid, _ := testGrid(t, 5)
	buf := bytes.Buffer{}
	if err := WriteCheckpoint(&buf, grid); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	env := decodeEnvelope(t, buf.Bytes())
	env.Version = 99

	_, err := ReadCheckpoint(bytes.NewReader(reencode(t, env)))
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("future version: got err %v, want version error", err)
	}
}

func TestCheckpointRejectsLockstepViolation(t *testing.T) {
	grid, _ := testGrid(t, 5)

	// A validly-signed payload whose cells disagree on the count still
	// must not load.
	payload := checkpointPayload{
		NumGuesses: grid.numGuesses,
		NumSamples: grid.numSamples,
		Count:      grid.count + 1,
		Cells:      grid.cells,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("payload encode failed: %v", err)
	}
	sum := blake2b.Sum256(raw)
	env := checkpointEnvelope{
		Version: checkpointVersion,
		Digest:  hex.EncodeToString(sum[:]),
		Payload: raw,
	}

	_, err = ReadCheckpoint(bytes.NewReader(reencode(t, env)))
	if err == nil || !strings.Contains(err.Error(), "corrupt checkpoint") {
		t.Errorf("lockstep violation: got err %v, want corrupt checkpoint", err)
	}
}

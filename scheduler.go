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

// Streaming run loop: pulls trace batches and folds them into the grid.
package cpa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/courk/esp-cpa/util"
)

// State of one CPA run.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StatePaused
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Progress is published after each settled batch.
type Progress struct {
	Batch  int
	Traces int
}

// RunError wraps a fatal batch error with the index at which it occurred.
// The last good checkpoint survives a failed run for manual resumption or
// partial analysis.
type RunError struct {
	BatchIndex int
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.BatchIndex, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

type SchedulerOptions struct {
	// Traces pulled per batch. A resource knob, not a correctness one:
	// the final result is invariant to the choice. Defaults to 256.
	BatchSize int
	// Checkpoint destination. Empty disables checkpointing entirely.
	CheckpointPath string
	// Batches between periodic checkpoints. 0 checkpoints only at
	// pause and completion.
	CheckpointEvery int
	// Optional progress broker; the scheduler publishes one Progress
	// per settled batch.
	Progress *util.Broker[Progress]
}

// Scheduler drives one CPA run: IDLE -> STREAMING -> (PAUSED | COMPLETE |
// FAILED). It is the grid's only writer while streaming; concurrent
// readers must use the last checkpoint, never the live grid.
type Scheduler struct {
	source  TraceSource
	backend ComputeBackend
	model   LeakageModel
	guesses []byte
	grid    *Grid
	opts    SchedulerOptions

	fetchOnce sync.Once
	stopOnce  sync.Once
	fetchCh   chan fetchResult
	stopFetch chan struct{}

	mu             sync.Mutex
	state          State
	batchIndex     int
	lastCheckpoint string
}

// NewScheduler wires a run together. Pass a grid restored with
// LoadCheckpoint to resume an earlier run; its dimensions must match the
// source and guess space.
func NewScheduler(grid *Grid, source TraceSource, backend ComputeBackend,
	model LeakageModel, guesses []byte, opts SchedulerOptions) (*Scheduler, error) {
	if grid.NumGuesses() != len(guesses) || grid.NumSamples() != source.NumSamples() {
		return nil, &DimensionMismatchError{
			GotGuesses:  len(guesses),
			GotSamples:  source.NumSamples(),
			WantGuesses: grid.NumGuesses(),
			WantSamples: grid.NumSamples(),
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	return &Scheduler{
		source:    source,
		backend:   backend,
		model:     model,
		guesses:   guesses,
		grid:      grid,
		opts:      opts,
		fetchCh:   make(chan fetchResult, 1),
		stopFetch: make(chan struct{}),
	}, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BatchIndex is the number of batches settled so far.
func (s *Scheduler) BatchIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchIndex
}

// LastCheckpoint is the path of the newest settled snapshot, if any.
func (s *Scheduler) LastCheckpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheckpoint
}

// Grid exposes the accumulator state. Only settled once Run has returned.
func (s *Scheduler) Grid() *Grid {
	return s.grid
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) checkpointNow() error {
	if s.opts.CheckpointPath == "" {
		return nil
	}
	if err := s.grid.Checkpoint(s.opts.CheckpointPath); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastCheckpoint = s.opts.CheckpointPath
	s.mu.Unlock()
	glog.V(1).Infof("Checkpoint written to %s (%d traces)",
		s.opts.CheckpointPath, s.grid.Count())
	return nil
}

type fetchResult struct {
	batch *Batch
	err   error
}

// The fetcher decodes the next batch while the backend chews on the
// current one. It lives for the scheduler's lifetime, not one Run's: a
// batch fetched right before a pause stays parked in fetchCh and is the
// first one consumed on resume, so pausing loses nothing. The source is
// read-only and independent of grid state, so this overlap never races
// the single grid writer.
func (s *Scheduler) startFetcher() {
	s.fetchOnce.Do(func() {
		go func() {
			for {
				select {
				case <-s.stopFetch:
					return
				default:
				}
				batch, err := s.source.NextBatch(s.opts.BatchSize)
				select {
				case s.fetchCh <- fetchResult{batch, err}:
					if err != nil {
						return
					}
				case <-s.stopFetch:
					return
				}
			}
		}()
	})
}

func (s *Scheduler) stopFetcher() {
	s.stopOnce.Do(func() { close(s.stopFetch) })
}

// Run streams batches until the source is exhausted, the context is
// canceled, or a batch fails. Cancellation is honored only at batch
// boundaries so every cell reaches the same count; a canceled run
// checkpoints and parks in StatePaused, resumable by calling Run again
// (or by loading the checkpoint into a fresh scheduler). A nil return
// means StateComplete or StatePaused; inspect State() to tell them apart.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StatePaused:
		s.state = StateStreaming
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start run from state %v", state)
	}
	s.mu.Unlock()

	s.startFetcher()

	for {
		select {
		case <-ctx.Done():
			return s.pause()
		default:
		}

		select {
		case <-ctx.Done():
			return s.pause()
		case r := <-s.fetchCh:
			if r.err != nil {
				if errors.Is(r.err, ErrSourceExhausted) {
					return s.complete()
				}
				return s.fail(fmt.Errorf("trace source: %w", r.err))
			}
			if r.batch.Len() == 0 {
				continue
			}
			if err := s.backend.ApplyBatch(s.grid, r.batch, s.guesses, s.model); err != nil {
				return s.fail(err)
			}

			s.mu.Lock()
			s.batchIndex++
			index := s.batchIndex
			s.mu.Unlock()
			glog.V(1).Infof("Batch %d settled (%d traces total)", index, s.grid.Count())
			if s.opts.Progress != nil {
				s.opts.Progress.Publish(Progress{Batch: index, Traces: s.grid.Count()})
			}

			if s.opts.CheckpointEvery > 0 && index%s.opts.CheckpointEvery == 0 {
				if err := s.checkpointNow(); err != nil {
					return s.fail(err)
				}
			}
		}
	}
}

func (s *Scheduler) pause() error {
	if err := s.checkpointNow(); err != nil {
		return s.fail(err)
	}
	s.setState(StatePaused)
	glog.Infof("Run paused after %d batches (%d traces)", s.BatchIndex(), s.grid.Count())
	return nil
}

func (s *Scheduler) complete() error {
	s.stopFetcher()
	if err := s.checkpointNow(); err != nil {
		return s.fail(err)
	}
	s.setState(StateComplete)
	glog.Infof("Run complete: %d batches, %d traces", s.BatchIndex(), s.grid.Count())
	return nil
}

func (s *Scheduler) fail(err error) error {
	s.stopFetcher()
	s.setState(StateFailed)
	runErr := &RunError{BatchIndex: s.BatchIndex(), Err: err}
	glog.Errorf("Run failed: %v (last checkpoint: %q)", runErr, s.LastCheckpoint())
	return runErr
}

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

// Leakage models predicting the power consumption of AES intermediates.
//
// Every time a register bit flips from 0 to 1 (or vice versa), some
// current is required to (dis)charge the data lines, so the power drawn
// at the moment an intermediate value is written is proportional to the
// Hamming distance from the previous register content. Assuming the
// replaced value is zero reduces this to the Hamming weight of the new
// value.
package cpa

import (
	"math"
	"math/bits"
)

// LeakageModel maps one trace's known data and a candidate key byte to a
// predicted leakage value. Implementations must be pure and deterministic;
// the engine invokes them once per (trace, guess) pair per batch and never
// interprets their semantics.
type LeakageModel interface {
	Estimate(known []byte, guess byte) float64
}

// AllByteGuesses returns the canonical guess space for an 8-bit key byte.
func AllByteGuesses() []byte {
	guesses := make([]byte, 256)
	for i := range guesses {
		guesses[i] = byte(i)
	}
	return guesses
}

func betaWeight(hw int, beta float64) float64 {
	if beta == 1 {
		return float64(hw)
	}
	return math.Pow(float64(hw), beta)
}

// Round0Model predicts the sbox lookup of the first AES round:
// HW(sbox[known[i] ^ guess]), raised to the Beta exponent. Beta slightly
// away from 1 compensates for non-linear measurement response.
type Round0Model struct {
	ByteIndex int
	Beta      float64
}

func NewRound0Model(byteIndex int, beta float64) *Round0Model {
	return &Round0Model{ByteIndex: byteIndex, Beta: beta}
}

func (m *Round0Model) Estimate(known []byte, guess byte) float64 {
	hw := bits.OnesCount8(sbox[known[m.ByteIndex]^guess])
	return betaWeight(hw, m.Beta)
}

// Round1Model predicts the sbox lookup of the second AES round. It needs
// the already-recovered first round key to run the state through round 0;
// the leak is the Hamming distance between the new sbox output and the
// round-0 sbox output previously held in the same register.
type Round1Model struct {
	ByteIndex int
	Beta      float64
	K0        [16]byte
}

func NewRound1Model(byteIndex int, beta float64, k0 [16]byte) *Round1Model {
	return &Round1Model{ByteIndex: byteIndex, Beta: beta, K0: k0}
}

func (m *Round1Model) Estimate(known []byte, guess byte) float64 {
	var state aesState
	copy(state[:], known)
	state.addRoundKey(&m.K0)
	state.subBytes()
	state.shiftRows()
	state.mixColumns()

	prev := sbox[known[m.ByteIndex]^m.K0[m.ByteIndex]]
	hw := bits.OnesCount8(sbox[state[m.ByteIndex]^guess] ^ prev)
	return betaWeight(hw, m.Beta)
}

// Round0DecTableModel targets table-based decryption implementations:
// the leak is the 32-bit decryption table entry selected by the inverse
// sbox of known[i] ^ guess.
type Round0DecTableModel struct {
	ByteIndex int
	Beta      float64
}

func NewRound0DecTableModel(byteIndex int, beta float64) *Round0DecTableModel {
	return &Round0DecTableModel{ByteIndex: byteIndex, Beta: beta}
}

func decTableEntry(i byte) uint32 {
	return uint32(gmul(i, 9)) |
		uint32(gmul(i, 11))<<8 |
		uint32(gmul(i, 13))<<16 |
		uint32(gmul(i, 14))<<24
}

func (m *Round0DecTableModel) Estimate(known []byte, guess byte) float64 {
	hw := bits.OnesCount32(decTableEntry(invSbox[known[m.ByteIndex]^guess]))
	return betaWeight(hw, m.Beta)
}

// Round1DecTableModel is the second-round variant of the decryption-table
// model: the state first runs through the inverse round 0 under the
// recovered tweaked round key.
type Round1DecTableModel struct {
	ByteIndex int
	Beta      float64
	Tk0       [16]byte
}

func NewRound1DecTableModel(byteIndex int, beta float64, tk0 [16]byte) *Round1DecTableModel {
	return &Round1DecTableModel{ByteIndex: byteIndex, Beta: beta, Tk0: tk0}
}

func (m *Round1DecTableModel) Estimate(known []byte, guess byte) float64 {
	var state aesState
	copy(state[:], known)
	state.addRoundKey(&m.Tk0)
	state.invShiftRows()
	state.invSubBytes()
	state.invMixColumns()

	hw := bits.OnesCount32(decTableEntry(invSbox[state[m.ByteIndex]^guess]))
	return betaWeight(hw, m.Beta)
}

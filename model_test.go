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

import "testing"

func TestSboxTablesAreInverses(t *testing.T) {
	for i := 0; i < 256; i++ {
		if invSbox[sbox[i]] != byte(i) {
			t.Fatalf("invSbox[sbox[%#02x]] = %#02x", i, invSbox[sbox[i]])
		}
	}
}

func TestGmul(t *testing.T) {
	// {57} x {13} = {fe}, the worked example from FIPS-197.
	if got := gmul(0x57, 0x13); got != 0xfe {
		t.Errorf("gmul(0x57, 0x13) = %#02x, want 0xfe", got)
	}
	for i := 0; i < 256; i++ {
		if gmul(byte(i), 1) != byte(i) {
			t.Fatalf("gmul(%#02x, 1) != %#02x", i, i)
		}
	}
}

func TestMixColumnsKnownVector(t *testing.T) {
	// First column of the FIPS-197 MixColumns example.
	state := aesState{0xd4, 0xbf, 0x5d, 0x30}
	state.mixColumns()
	want := [4]byte{0x04, 0x66, 0x81, 0xe5}
	for i, w := range want {
		if state[i] != w {
			t.Fatalf("mixColumns byte %d = %#02x, want %#02x", i, state[i], w)
		}
	}
	state.invMixColumns()
	if state != (aesState{0xd4, 0xbf, 0x5d, 0x30}) {
		t.Errorf("invMixColumns did not invert mixColumns: %v", state)
	}
}

func TestShiftRowsRoundTrip(t *testing.T) {
	var state aesState
	for i := range state {
		state[i] = byte(i)
	}
	orig := state
	state.shiftRows()
	// Row 1 rotates left by one column: position (1,0) takes (1,1).
	if state[1] != orig[5] {
		t.Errorf("shiftRows moved %#02x into (1,0), want %#02x", state[1], orig[5])
	}
	state.invShiftRows()
	if state != orig {
		t.Errorf("invShiftRows did not invert shiftRows: %v", state)
	}
}

func TestRound0Estimate(t *testing.T) {
	m := NewRound0Model(0, 1)
	// sbox[0x00] = 0x63, weight 4.
	if got := m.Estimate([]byte{0x00}, 0x00); got != 4 {
		t.Errorf("Estimate = %v, want 4", got)
	}
	// sbox[0x2b ^ 0x2b] again, via a matching guess.
	if got := m.Estimate([]byte{0x2b}, 0x2b); got != 4 {
		t.Errorf("Estimate = %v, want 4", got)
	}

	squared := NewRound0Model(0, 2)
	if got := squared.Estimate([]byte{0x00}, 0x00); got != 16 {
		t.Errorf("beta=2 Estimate = %v, want 16", got)
	}
}

func TestDecTableEntry(t *testing.T) {
	if got := decTableEntry(1); got != 0x0e0d0b09 {
		t.Errorf("decTableEntry(1) = %#08x, want 0x0e0d0b09", got)
	}
}

func TestRound1ModelsAreDeterministic(t *testing.T) {
	known := []byte{0x32, 0x43, 0xf6, 0xa8, 0x88, 0x5a, 0x30, 0x8d,
		0x31, 0x31, 0x98, 0xa2, 0xe0, 0x37, 0x07, 0x34}
	var k0 [16]byte
	copy(k0[:], []byte{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6,
		0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c})

	for _, m := range []LeakageModel{
		NewRound1Model(3, 1, k0),
		NewRound1DecTableModel(3, 1, k0),
	} {
		first := m.Estimate(known, 0x42)
		if second := m.Estimate(known, 0x42); second != first {
			t.Errorf("%T is not deterministic: %v vs %v", m, first, second)
		}
	}
}

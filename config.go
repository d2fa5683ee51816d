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

// Attack run configuration.
package cpa

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	homedir "github.com/mitchellh/go-homedir"
)

// Config describes one single-byte attack run.
type Config struct {
	// Leakage model: "round0", "round1", "round0dectable" or
	// "round1dectable".
	Model     string  `toml:"model"`
	ByteIndex int     `toml:"byte_index"`
	Beta      float64 `toml:"beta"`
	// Hex-encoded 16-byte round keys, required by the round1 models.
	K0  string `toml:"k0"`
	Tk0 string `toml:"tk0"`
	// Which trace field feeds the model: "pt" or "ct".
	Known           string `toml:"known"`
	BatchSize       int    `toml:"batch_size"`
	Workers         int    `toml:"workers"`
	Checkpoint      string `toml:"checkpoint"`
	CheckpointEvery int    `toml:"checkpoint_every"`
}

// LoadConfig reads a TOML attack configuration. Paths may start with "~".
func LoadConfig(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("cannot expand config path: %v", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %v", err)
	}
	cfg := Config{
		Model:     "round0",
		Beta:      1,
		Known:     "pt",
		BatchSize: 256,
	}
	if _, err = toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %v", err)
	}
	if cfg.ByteIndex < 0 || cfg.ByteIndex > 15 {
		return nil, fmt.Errorf("byte_index %d out of range", cfg.ByteIndex)
	}
	if cfg.Known != "pt" && cfg.Known != "ct" {
		return nil, fmt.Errorf("unknown known field %q", cfg.Known)
	}
	if cfg.Checkpoint != "" {
		if cfg.Checkpoint, err = homedir.Expand(cfg.Checkpoint); err != nil {
			return nil, fmt.Errorf("cannot expand checkpoint path: %v", err)
		}
	}
	if _, err = cfg.NewModel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseRoundKey(name, value string) ([16]byte, error) {
	var key [16]byte
	raw, err := hex.DecodeString(value)
	if err != nil {
		return key, fmt.Errorf("%s is not valid hex: %v", name, err)
	}
	if len(raw) != 16 {
		return key, fmt.Errorf("%s must be 16 bytes long, got %d", name, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// NewModel instantiates the configured leakage model.
func (c *Config) NewModel() (LeakageModel, error) {
	switch c.Model {
	case "round0":
		return NewRound0Model(c.ByteIndex, c.Beta), nil
	case "round0dectable":
		return NewRound0DecTableModel(c.ByteIndex, c.Beta), nil
	case "round1":
		k0, err := parseRoundKey("k0", c.K0)
		if err != nil {
			return nil, err
		}
		return NewRound1Model(c.ByteIndex, c.Beta, k0), nil
	case "round1dectable":
		tk0, err := parseRoundKey("tk0", c.Tk0)
		if err != nil {
			return nil, err
		}
		return NewRound1DecTableModel(c.ByteIndex, c.Beta, tk0), nil
	default:
		return nil, fmt.Errorf("unknown model name %q", c.Model)
	}
}

// ParseKnown maps the configured known-field name to its selector.
func (c *Config) ParseKnown() KnownField {
	if c.Known == "ct" {
		return KnownCiphertext
	}
	return KnownPlaintext
}

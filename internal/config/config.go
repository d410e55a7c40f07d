// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config builds an immutable match configuration from CLI flags:
// argument validation, config-file loading, and output directory
// defaulting.
package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// Config is the judger's immutable, validated configuration record.
type Config struct {
	Port            int
	PlayerCount     int
	LogicPath       string
	OutputDir       string
	ReplayPath      string
	Config          json.RawMessage
	ProtocolVersion int
	LogLevel        string
}

// Options are the raw, unvalidated values read from CLI flags, before
// path resolution and defaulting.
type Options struct {
	Port            int
	PlayerCount     int
	ConfigFile      string
	Output          string
	LogicPath       string
	ProtocolVersion int
	LogLevel        string
}

// Load validates opts and resolves it into a Config: playerCount and
// logicPath are required, relative paths resolve against the process's
// working directory, a missing output directory name is defaulted to a
// random res-NNNNNNNNNN and created, and a config file (if given) is
// parsed as JSON with distinct error messages for an unreadable file
// versus invalid JSON.
func Load(opts Options) (Config, error) {
	if opts.PlayerCount <= 0 {
		return Config{}, fmt.Errorf("config: --player-count is required and must be positive")
	}
	if opts.LogicPath == "" {
		return Config{}, fmt.Errorf("config: --logic-path is required")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("config: resolving working directory: %w", err)
	}

	rawConfig := json.RawMessage("{}")
	if opts.ConfigFile != "" {
		path := resolve(cwd, opts.ConfigFile)
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: failed to access config file %s: %w", path, err)
		}
		var probe json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return Config{}, fmt.Errorf("config: failed to parse json in config file [%s]: %w", path, err)
		}
		rawConfig = probe
	}

	output := opts.Output
	if output == "" {
		output = fmt.Sprintf("res-%010d", rand.Int63n(10000000000))
	}
	outputDir := resolve(cwd, output)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("config: cannot access output directory: %w", err)
	}

	return Config{
		Port:            opts.Port,
		PlayerCount:     opts.PlayerCount,
		LogicPath:       resolve(cwd, opts.LogicPath),
		OutputDir:       outputDir,
		ReplayPath:      filepath.Join(outputDir, "replay.json"),
		Config:          rawConfig,
		ProtocolVersion: opts.ProtocolVersion,
		LogLevel:        opts.LogLevel,
	}, nil
}

// resolve joins a possibly-relative path against cwd; an already-absolute
// path is returned unchanged.
func resolve(cwd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

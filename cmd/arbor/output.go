// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings/disagreements
	CLIExitError    = 2 // Operation failed
)

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult handles all output scenarios with proper formatting.
//
// # Inputs
//
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the operation found disagreements (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(cfg OutputConfig, cmd string, start time.Time, data interface{}, hasFindings bool, err error) int {
	if cfg.Quiet {
		if err != nil {
			return CLIExitError
		}
		if hasFindings {
			return CLIExitFindings
		}
		return CLIExitSuccess
	}

	if err != nil {
		OutputError(cfg.JSON, "Command failed", err)
		return CLIExitError
	}

	if cfg.JSON {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := OutputJSON(result, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// AnalyzeData holds single point set analysis output.
type AnalyzeData struct {
	Source      string          `json:"source"`
	Algorithm   string          `json:"algorithm"`
	NodeCount   int             `json:"node_count"`
	EdgeCount   int             `json:"edge_count"`
	TipCount    int             `json:"tip_count"`
	CableLength float64         `json:"cable_length"`
	Length      float64         `json:"length"`
	Path        []graph.NodeID  `json:"path"`
	Tip         graph.NodeID    `json:"tip"`
	Fingerprint string          `json:"fingerprint"`
	DurationUs  int64           `json:"duration_us"`
	CrossCheck  *CrossCheckData `json:"cross_check,omitempty"`
}

// CrossCheckData holds the generic-oracle comparison for an analysis.
type CrossCheckData struct {
	Algorithm  string         `json:"algorithm"`
	Length     float64        `json:"length"`
	Path       []graph.NodeID `json:"path"`
	DurationUs int64          `json:"duration_us"`
	Agree      bool           `json:"agree"`
}

// BatchData holds directory batch run output.
type BatchData struct {
	Directory string        `json:"directory"`
	Report    *batch.Report `json:"report"`
	StoredIDs []string      `json:"stored_ids,omitempty"`
}

// BenchData holds benchmark run output.
type BenchData struct {
	Seed int64      `json:"seed"`
	Runs int        `json:"runs"`
	Rows []BenchRow `json:"rows"`
}

// BenchRow holds timing results for one synthetic graph size.
type BenchRow struct {
	Nodes      int     `json:"nodes"`
	BuildUs    int64   `json:"build_us"`
	LinearUs   int64   `json:"linear_us"`
	DijkstraUs int64   `json:"dijkstra_us"`
	Speedup    float64 `json:"speedup"`
	Length     float64 `json:"length"`
	Agree      bool    `json:"agree"`
}

// formatLength renders a path length with the shortest representation
// that round-trips through float64.
func formatLength(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatPath renders a node path as "0 -> 1 -> 3".
func formatPath(path []graph.NodeID) string {
	if len(path) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, " -> ")
}

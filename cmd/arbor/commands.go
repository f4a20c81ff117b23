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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	outputMode string // CLI override for output style (styled/plain)
	quietMode  bool

	// Analyze flags
	analyzeGeneric bool
	analyzeJSON    bool

	// Batch flags
	batchWorkers int
	batchWatch   bool
	batchStore   bool
	batchJSON    bool

	// Bench flags
	benchNodes int
	benchRuns  int
	benchSeed  int64
	benchJSON  bool

	// Serve flags
	servePort int

	rootCmd = &cobra.Command{
		Use:   "arbor",
		Short: "A cli to analyze neuronal morphology graphs",
		Long: `Arbor builds rooted trees from reconstruction point tables and
computes morphometric properties, chiefly the graph diameter:
the longest root-to-tip shortest path.`,
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze [file]",
		Short: "Compute the diameter of a single point table",
		Long: `Load a point table from a JSON file, build the tree, and report
the diameter: its length, the root-to-tip path, and basic morphometrics.

File formats:
  - Bare JSON array of sample points
  - Object with "name" and "points" fields

Examples:
  arbor analyze points.json
  arbor analyze points.json --generic
  arbor analyze points.json --json | jq .data.length`,
		Args: cobra.ExactArgs(1),
		Run:  runAnalyze, // Defined in cmd_analyze.go
	}

	// --- Batch ---
	batchCmd = &cobra.Command{
		Use:   "batch [directory]",
		Short: "Analyze every point table in a drop directory",
		Long: `Walk a directory, build one tree per .json point table, and run
the diameter analysis across a bounded worker pool. With --watch the
directory is monitored and the batch re-runs when tables change.

Examples:
  arbor batch ./pointsets
  arbor batch ./pointsets --workers 8 --store
  arbor batch ./pointsets --watch
  arbor batch ./pointsets --json > report.json`,
		Args: cobra.ExactArgs(1),
		Run:  runBatch, // Defined in cmd_batch.go
	}

	// --- Benchmark ---
	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the diameter algorithms on synthetic trees",
		Long: `Generate random trees, time the tree-native analysis against the
Dijkstra-based one, and cross-check that both agree. Disagreement exits
with code 1.

Examples:
  arbor bench
  arbor bench --nodes 100000 --runs 10
  arbor bench --seed 7 --json`,
		Run: runBench, // Defined in cmd_bench.go
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the morphology analysis HTTP service",
		Long: `Start the morpho HTTP service: graph registration, diameter and
path queries, batch analysis, and optional persistent result storage,
as configured by the YAML configuration file.

Examples:
  arbor serve
  arbor serve --port 9090
  arbor serve --config deploy/arbor.yaml`,
		Run: runServe, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "arbor.yaml",
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: styled or plain (default: auto-detect)")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false,
		"Suppress output, exit code only")

	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeGeneric, "generic", false,
		"Cross-check the result against the Dijkstra-based analysis")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false,
		"Output as JSON for scripting")

	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0,
		"Concurrent analyses (0 = configuration default)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false,
		"Keep watching the directory and re-run on changes")
	batchCmd.Flags().BoolVar(&batchStore, "store", false,
		"Persist successful results to the result store")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false,
		"Output as JSON for scripting")

	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&benchNodes, "nodes", 0,
		"Single tree size to benchmark (0 = built-in size ladder)")
	benchCmd.Flags().IntVar(&benchRuns, "runs", 5,
		"Timed runs per algorithm")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 42,
		"Random tree generator seed")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false,
		"Output as JSON for scripting")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"Listen port (overrides the configuration file)")
}

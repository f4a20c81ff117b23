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
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/arbor/pkg/ux"
	"github.com/AleutianAI/arbor/services/morpho/analysis"
	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// benchSizes is the built-in size ladder used when --nodes is not set.
var benchSizes = []int{1000, 10000, 100000}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runBench times both diameter analyses on random trees and cross-checks
// their answers.
func runBench(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	outCfg := OutputConfig{JSON: benchJSON, Quiet: quietMode}
	start := time.Now()

	sizes := benchSizes
	if benchNodes > 0 {
		sizes = []int{benchNodes}
	}
	runs := benchRuns
	if runs < 1 {
		runs = 1
	}

	rng := rand.New(rand.NewSource(benchSeed))
	data := BenchData{Seed: benchSeed, Runs: runs}
	hasFindings := false

	if !benchJSON && !quietMode {
		ux.Title("Diameter Benchmark")
		ux.KeyValue("Seed", fmt.Sprintf("%d", benchSeed))
		ux.KeyValue("Runs per algorithm", fmt.Sprintf("%d", runs))
	}

	for _, n := range sizes {
		row, err := benchOne(ctx, rng, n, runs)
		if err != nil {
			os.Exit(OutputResult(outCfg, "bench", start, nil, false, err))
		}
		if !row.Agree {
			hasFindings = true
		}
		data.Rows = append(data.Rows, *row)

		if !benchJSON && !quietMode {
			ux.KeyValue(fmt.Sprintf("%d nodes", row.Nodes),
				fmt.Sprintf("build %dus  linear %dus  dijkstra %dus  speedup %.1fx",
					row.BuildUs, row.LinearUs, row.DijkstraUs, row.Speedup))
			if !row.Agree {
				ux.Warning(fmt.Sprintf("%d nodes: analyses disagree", row.Nodes))
			}
		}
	}

	if !benchJSON && !quietMode && !hasFindings {
		ux.Success("Both analyses agree on every tree")
	}

	os.Exit(OutputResult(outCfg, "bench", start, data, hasFindings, nil))
}

// benchOne generates one random tree and times both analyses on it.
func benchOne(ctx context.Context, rng *rand.Rand, n, runs int) (*BenchRow, error) {
	buildStart := time.Now()
	g, err := graph.NewRandomTree(rng, n, 0.5, 2.0)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(g)
	if err != nil {
		return nil, err
	}
	buildDur := time.Since(buildStart)

	// Warm call: validation happens once and is cached, so the timed
	// runs below cover traversal only.
	linResult, err := analyzer.Diameter(ctx)
	if err != nil {
		return nil, err
	}

	linearDur, err := timeRuns(runs, func() error {
		_, err := analyzer.Diameter(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	genResult, err := analyzer.DiameterGeneric(ctx)
	if err != nil {
		return nil, err
	}
	genericDur, err := timeRuns(runs, func() error {
		_, err := analyzer.DiameterGeneric(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	speedup := 0.0
	if linearDur > 0 {
		speedup = float64(genericDur) / float64(linearDur)
	}

	return &BenchRow{
		Nodes:      n,
		BuildUs:    buildDur.Microseconds(),
		LinearUs:   linearDur.Microseconds(),
		DijkstraUs: genericDur.Microseconds(),
		Speedup:    speedup,
		Length:     linResult.Length,
		Agree: linResult.Length == genResult.Length &&
			equalPaths(linResult.Path, genResult.Path),
	}, nil
}

// timeRuns runs fn the given number of times and returns the mean
// duration per run.
func timeRuns(runs int, fn func() error) (time.Duration, error) {
	start := time.Now()
	for i := 0; i < runs; i++ {
		if err := fn(); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(runs), nil
}

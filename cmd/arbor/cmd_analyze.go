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
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/arbor/pkg/ux"
	"github.com/AleutianAI/arbor/services/morpho/analysis"
	"github.com/AleutianAI/arbor/services/morpho/graph"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runAnalyze loads one point table and reports its diameter.
func runAnalyze(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	path := args[0]
	outCfg := OutputConfig{JSON: analyzeJSON, Quiet: quietMode}
	start := time.Now()

	// Load and build
	set, err := loadPointSet(path)
	if err != nil {
		os.Exit(OutputResult(outCfg, "analyze", start, nil, false, err))
	}

	g, err := graph.NewFromPoints(set.Points)
	if err != nil {
		os.Exit(OutputResult(outCfg, "analyze", start, nil, false, err))
	}

	analyzer, err := analysis.NewAnalyzer(g)
	if err != nil {
		os.Exit(OutputResult(outCfg, "analyze", start, nil, false, err))
	}

	// Analyze
	linStart := time.Now()
	result, err := analyzer.Diameter(ctx)
	if err != nil {
		os.Exit(OutputResult(outCfg, "analyze", start, nil, false, err))
	}
	linDur := time.Since(linStart)

	stats := g.Stats()
	tip, _ := result.Terminal()

	data := AnalyzeData{
		Source:      path,
		Algorithm:   "linear",
		NodeCount:   stats.NodeCount,
		EdgeCount:   stats.EdgeCount,
		TipCount:    stats.TipCount,
		CableLength: stats.CableLength,
		Length:      result.Length,
		Path:        result.Path,
		Tip:         tip,
		Fingerprint: g.Fingerprint(),
		DurationUs:  linDur.Microseconds(),
	}

	// Cross-check against the Dijkstra-based analysis
	hasFindings := false
	if analyzeGeneric {
		genStart := time.Now()
		generic, err := analyzer.DiameterGeneric(ctx)
		if err != nil {
			os.Exit(OutputResult(outCfg, "analyze", start, nil, false, err))
		}
		agree := generic.Length == result.Length && equalPaths(generic.Path, result.Path)
		data.CrossCheck = &CrossCheckData{
			Algorithm:  "dijkstra",
			Length:     generic.Length,
			Path:       generic.Path,
			DurationUs: time.Since(genStart).Microseconds(),
			Agree:      agree,
		}
		hasFindings = !agree
	}

	// Styled output
	if !analyzeJSON && !quietMode {
		ux.Title("Diameter Analysis")
		ux.KeyValue("Source", path)
		ux.KeyValue("Nodes", strconv.Itoa(stats.NodeCount))
		ux.KeyValue("Tips", strconv.Itoa(stats.TipCount))
		ux.KeyValue("Cable length", formatLength(stats.CableLength))
		ux.KeyValue("Diameter", formatLength(result.Length))
		ux.KeyValue("Path", formatPath(result.Path))
		ux.KeyValue("Duration", linDur.String())

		if data.CrossCheck != nil {
			if data.CrossCheck.Agree {
				ux.Success("Cross-check agrees with the Dijkstra-based analysis")
			} else {
				ux.Warning(fmt.Sprintf("Cross-check disagrees: dijkstra found %s via %s",
					formatLength(data.CrossCheck.Length), formatPath(data.CrossCheck.Path)))
			}
		}
	}

	os.Exit(OutputResult(outCfg, "analyze", start, data, hasFindings, nil))
}

// equalPaths reports whether two node sequences are identical.
func equalPaths(a, b []graph.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

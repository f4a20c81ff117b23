// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/stat"
)

// Morphometrics summarizes a traced structure in scalar form.
//
// Tip depth is the cumulative edge weight from the root to a tip. The
// standard deviation is the population form: the tips of one structure
// are the whole population of interest, not a sample from a larger one.
type Morphometrics struct {
	NodeCount        int     `json:"node_count"`
	EdgeCount        int     `json:"edge_count"`
	TipCount         int     `json:"tip_count"`
	BranchPointCount int     `json:"branch_point_count"`
	CableLength      float64 `json:"cable_length"`
	MaxTipDepth      float64 `json:"max_tip_depth"`
	MinTipDepth      float64 `json:"min_tip_depth"`
	MeanTipDepth     float64 `json:"mean_tip_depth"`
	TipDepthStdDev   float64 `json:"tip_depth_std_dev"`
}

// Morphometrics computes scalar summaries for the tree.
//
// MaxTipDepth equals the Diameter length; both derive from the same
// root-distance traversal.
//
// Complexity: O(V + E).
func (a *Analyzer) Morphometrics(ctx context.Context) (*Morphometrics, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "analysis.Morphometrics")
	defer span.End()

	if err := a.ensureValid(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tree")
		return nil, err
	}

	root, err := a.graph.Root()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "root lookup failed")
		return nil, err
	}

	dist, _, err := a.rootDistances(ctx, root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traversal cancelled")
		return nil, err
	}

	tips := a.graph.Tips()
	depths := make([]float64, 0, len(tips))
	for _, tip := range tips {
		depths = append(depths, dist[tip])
	}

	m := &Morphometrics{
		NodeCount:        a.graph.NodeCount(),
		EdgeCount:        a.graph.EdgeCount(),
		TipCount:         len(tips),
		BranchPointCount: len(a.graph.BranchPoints()),
		CableLength:      a.graph.SumEdgeWeights(),
	}
	if len(depths) > 0 {
		m.MinTipDepth = depths[0]
		m.MaxTipDepth = depths[0]
		for _, d := range depths[1:] {
			if d < m.MinTipDepth {
				m.MinTipDepth = d
			}
			if d > m.MaxTipDepth {
				m.MaxTipDepth = d
			}
		}
		m.MeanTipDepth = stat.Mean(depths, nil)
		m.TipDepthStdDev = stat.PopStdDev(depths, nil)
	}

	span.SetAttributes(
		attribute.Int("node_count", m.NodeCount),
		attribute.Int("tip_count", m.TipCount),
		attribute.Float64("cable_length", m.CableLength),
	)
	span.SetStatus(codes.Ok, "morphometrics computed")

	return m, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"math"
	"math/rand"
)

// NewRandomTree builds a frozen random rooted tree.
//
// Description:
//
//	Produces a valid rooted tree with n nodes (IDs 1..n, root 1). Each
//	node after the first attaches to a uniformly chosen earlier node, so
//	shapes range from near-chains to near-stars. Edge weights are drawn
//	uniformly from [minWeight, maxWeight); coordinates are uniform in a
//	100-unit box and carry no relation to the weights.
//
//	A fixed rng seed reproduces the same tree, which the agreement tests
//	and the bench command rely on.
//
// Inputs:
//
//	rng - Seeded source of randomness. Must not be nil.
//	n - Node count, at least 1.
//	minWeight, maxWeight - Weight range, 0 <= min <= max, finite.
//
// Outputs:
//
//	*Graph - The frozen tree.
//	error - Non-nil on invalid arguments.
func NewRandomTree(rng *rand.Rand, n int, minWeight, maxWeight float64) (*Graph, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil rng", ErrInvalidNode)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: node count %d", ErrInvalidNode, n)
	}
	if math.IsNaN(minWeight) || math.IsInf(minWeight, 0) ||
		math.IsNaN(maxWeight) || math.IsInf(maxWeight, 0) ||
		minWeight < 0 || maxWeight < minWeight {
		return nil, fmt.Errorf("%w: range [%g, %g]", ErrNegativeWeight, minWeight, maxWeight)
	}

	g := New()
	for i := 1; i <= n; i++ {
		node := Node{
			ID:     NodeID(i),
			X:      rng.Float64() * 100,
			Y:      rng.Float64() * 100,
			Z:      rng.Float64() * 100,
			Radius: 0.5,
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for i := 2; i <= n; i++ {
		parent := NodeID(rng.Intn(i-1) + 1)
		weight := minWeight + rng.Float64()*(maxWeight-minWeight)
		if err := g.AddEdge(parent, NodeID(i), weight); err != nil {
			return nil, err
		}
	}

	g.Freeze()
	return g, nil
}

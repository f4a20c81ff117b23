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
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/arbor/services/morpho/graph"
)

func TestDiameterGeneric_SingleNode(t *testing.T) {
	g := graph.New()
	addNode(t, g, 42)
	g.Freeze()

	a, err := NewAnalyzer(g)
	require.NoError(t, err)

	res, err := a.DiameterGeneric(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Length)
	assert.Equal(t, []graph.NodeID{42}, res.Path)
}

func TestDiameterGeneric_Fork(t *testing.T) {
	a, err := NewAnalyzer(buildForkTree(t))
	require.NoError(t, err)

	res, err := a.DiameterGeneric(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Length)
	assert.Equal(t, []graph.NodeID{1, 3}, res.Path)
}

func TestDiameterGeneric_InvalidGraph(t *testing.T) {
	g := graph.New()
	addNode(t, g, 1)
	addNode(t, g, 2)
	addEdge(t, g, 1, 2, 1.0)
	addEdge(t, g, 2, 1, 1.0)
	g.Freeze()

	a, err := NewAnalyzer(g)
	require.NoError(t, err)

	res, err := a.DiameterGeneric(context.Background())
	require.ErrorIs(t, err, graph.ErrInvalidGraph)
	assert.Nil(t, res)
}

// TestDiameterGeneric_AgreesWithDiameter pits the tree-native traversal
// against the Dijkstra-per-tip baseline on random trees spanning the
// supported size range. The two must agree on length to 1e-9 and on the
// exact winning path, since tree paths are unique and both sides break
// ties by enumeration order.
func TestDiameterGeneric_AgreesWithDiameter(t *testing.T) {
	sizes := []int{2, 3, 10, 137, 1000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("fixed_size_%d", n), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(n)))
			g, err := graph.NewRandomTree(rng, n, 0.1, 100.0)
			require.NoError(t, err)
			assertMethodsAgree(t, g)
		})
	}

	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			n := rng.Intn(999) + 2
			g, err := graph.NewRandomTree(rng, n, 0.1, 100.0)
			require.NoError(t, err)
			assertMethodsAgree(t, g)
		})
	}
}

func assertMethodsAgree(t *testing.T, g *graph.Graph) {
	t.Helper()

	a, err := NewAnalyzer(g)
	require.NoError(t, err)

	native, err := a.Diameter(context.Background())
	require.NoError(t, err)
	generic, err := a.DiameterGeneric(context.Background())
	require.NoError(t, err)

	require.InDelta(t, native.Length, generic.Length, 1e-9,
		"tree-native and generic diameters diverged on %d nodes", g.NodeCount())
	assert.Equal(t, native.Path, generic.Path)
}

func TestDiameterGeneric_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	g, err := graph.NewRandomTree(rng, 250, 0.1, 100.0)
	require.NoError(t, err)

	a, err := NewAnalyzer(g)
	require.NoError(t, err)

	first, err := a.DiameterGeneric(context.Background())
	require.NoError(t, err)
	second, err := a.DiameterGeneric(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Length, second.Length)
	assert.Equal(t, first.Path, second.Path)
}

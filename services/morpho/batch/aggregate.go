// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package batch

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates diameter lengths across the successful tasks of a
// run. The standard deviation is the population form: the runs in a
// batch are the whole population being described, not a sample.
type Summary struct {
	TaskCount    int     `json:"task_count"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	MinLength    float64 `json:"min_length"`
	MaxLength    float64 `json:"max_length"`
	MeanLength   float64 `json:"mean_length"`
	MedianLength float64 `json:"median_length"`
	StdDevLength float64 `json:"std_dev_length"`
}

// Aggregate summarizes a result set. Failed tasks count toward Failed
// and contribute nothing to the length statistics. With zero successes
// all statistics are zero.
func Aggregate(results []Result) Summary {
	s := Summary{TaskCount: len(results)}

	lengths := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Diameter == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		lengths = append(lengths, r.Diameter.Length)
	}

	if len(lengths) == 0 {
		return s
	}

	sort.Float64s(lengths)
	s.MinLength = lengths[0]
	s.MaxLength = lengths[len(lengths)-1]
	s.MeanLength = stat.Mean(lengths, nil)
	s.MedianLength = median(lengths)
	s.StdDevLength = stat.PopStdDev(lengths, nil)

	return s
}

// median returns the conventional median of sorted values: the middle
// element, or the mean of the two middle elements for even counts.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

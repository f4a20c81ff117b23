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
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// PointSetFile is the on-disk JSON form of a point table: either a bare
// array of sample points, or an object carrying an optional name.
type PointSetFile struct {
	Name   string              `json:"name"`
	Points []graph.SamplePoint `json:"points"`
}

// loadPointSet reads a point table from a JSON file.
//
// # Inputs
//
//   - path: The file to read. Accepts a bare JSON array of points or an
//     object with "name" and "points" fields.
//
// # Outputs
//
//   - *PointSetFile: The parsed table. Name is empty unless the file
//     carries one; callers pick their own fallback.
//   - error: Non-nil on read or parse failure, or an empty table.
func loadPointSet(path string) (*PointSetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	set := &PointSetFile{}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &set.Points); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(trimmed, set); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if len(set.Points) == 0 {
		return nil, fmt.Errorf("parse %s: no points", path)
	}
	return set, nil
}

// loadPointSetDir walks a drop directory and builds one batch task per
// point-table file.
//
// # Inputs
//
//   - dir: The directory to walk. Files with a .json extension are
//     loaded; everything else is skipped.
//
// # Outputs
//
//   - []batch.Task: One task per table, named by relative path unless
//     the file carries its own name. Walk order fixes task order.
//   - error: Non-nil when the directory is unreadable, holds no tables,
//     or any table fails to load or build.
func loadPointSetDir(dir string) ([]batch.Task, error) {
	var tasks []batch.Task

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".json" {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		set, err := loadPointSet(path)
		if err != nil {
			return err
		}

		g, err := graph.NewFromPoints(set.Points)
		if err != nil {
			return fmt.Errorf("build %s: %w", rel, err)
		}

		name := set.Name
		if name == "" {
			name = rel
		}
		tasks = append(tasks, batch.Task{Name: name, Graph: g})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("no point tables found in %s", dir)
	}
	return tasks, nil
}

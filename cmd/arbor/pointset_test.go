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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// writePointFile writes one table file under dir, creating subdirectories
// as needed, and returns its path.
func writePointFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// TestLoadPointSet_BareArray tests loading a bare JSON array of points.
func TestLoadPointSet_BareArray(t *testing.T) {
	path := writePointFile(t, t.TempDir(), "chain.json",
		`[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"x":3}]`)

	set, err := loadPointSet(path)
	if err != nil {
		t.Fatalf("loadPointSet failed: %v", err)
	}

	if len(set.Points) != 2 {
		t.Errorf("Points len = %d, want 2", len(set.Points))
	}
	if set.Name != "" {
		t.Errorf("Name = %q, want empty for bare arrays", set.Name)
	}
	if set.Points[1].ParentID != 0 {
		t.Errorf("Points[1].ParentID = %d, want 0", set.Points[1].ParentID)
	}
	if set.Points[1].X != 3 {
		t.Errorf("Points[1].X = %v, want 3", set.Points[1].X)
	}
}

// TestLoadPointSet_Object tests loading the named object form.
func TestLoadPointSet_Object(t *testing.T) {
	path := writePointFile(t, t.TempDir(), "tree.json",
		`{"name":"y-tree","points":[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"x":3}]}`)

	set, err := loadPointSet(path)
	if err != nil {
		t.Fatalf("loadPointSet failed: %v", err)
	}

	if set.Name != "y-tree" {
		t.Errorf("Name = %q, want %q", set.Name, "y-tree")
	}
	if len(set.Points) != 2 {
		t.Errorf("Points len = %d, want 2", len(set.Points))
	}
}

// TestLoadPointSet_Errors tests the loader failure modes.
func TestLoadPointSet_Errors(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"malformed", `{"points": [`},
		{"empty object", `{"points": []}`},
		{"empty array", `[]`},
		{"wrong shape", `{"points": 7}`},
	}

	for _, tc := range cases {
		path := writePointFile(t, dir, tc.name+".json", tc.content)
		if _, err := loadPointSet(path); err == nil {
			t.Errorf("loadPointSet(%s) succeeded, want error", tc.name)
		}
	}

	if _, err := loadPointSet(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("loadPointSet on a missing file succeeded, want error")
	}
}

// TestLoadPointSetDir tests directory walking, naming, and filtering.
func TestLoadPointSetDir(t *testing.T) {
	dir := t.TempDir()
	writePointFile(t, dir, "a.json",
		`[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"x":1}]`)
	writePointFile(t, dir, "b.json",
		`{"name":"y-tree","points":[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"x":3}]}`)
	writePointFile(t, dir, "notes.txt", `not a point table`)
	writePointFile(t, dir, filepath.Join("sub", "c.json"),
		`[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"y":2}]`)

	tasks, err := loadPointSetDir(dir)
	if err != nil {
		t.Fatalf("loadPointSetDir failed: %v", err)
	}

	if len(tasks) != 3 {
		t.Fatalf("Tasks len = %d, want 3", len(tasks))
	}

	// WalkDir visits lexically: a.json, b.json, sub/c.json.
	if tasks[0].Name != "a.json" {
		t.Errorf("Tasks[0].Name = %q, want %q", tasks[0].Name, "a.json")
	}
	if tasks[1].Name != "y-tree" {
		t.Errorf("Tasks[1].Name = %q, want %q", tasks[1].Name, "y-tree")
	}
	if want := filepath.Join("sub", "c.json"); tasks[2].Name != want {
		t.Errorf("Tasks[2].Name = %q, want %q", tasks[2].Name, want)
	}

	for i, task := range tasks {
		if task.Graph == nil {
			t.Fatalf("Tasks[%d].Graph is nil", i)
		}
		if !task.Graph.IsFrozen() {
			t.Errorf("Tasks[%d].Graph is not frozen", i)
		}
		if task.Graph.NodeCount() != 2 {
			t.Errorf("Tasks[%d] node count = %d, want 2", i, task.Graph.NodeCount())
		}
	}
}

// TestLoadPointSetDir_Empty tests that a directory without tables fails.
func TestLoadPointSetDir_Empty(t *testing.T) {
	if _, err := loadPointSetDir(t.TempDir()); err == nil {
		t.Error("loadPointSetDir on an empty directory succeeded, want error")
	}
}

// TestLoadPointSetDir_Missing tests that a missing directory fails.
func TestLoadPointSetDir_Missing(t *testing.T) {
	if _, err := loadPointSetDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("loadPointSetDir on a missing directory succeeded, want error")
	}
}

// TestLoadPointSetDir_BadTable tests that one bad table fails the load.
func TestLoadPointSetDir_BadTable(t *testing.T) {
	dir := t.TempDir()
	writePointFile(t, dir, "good.json",
		`[{"id":0,"parent_id":-1},{"id":1,"parent_id":0,"x":1}]`)
	writePointFile(t, dir, "bad.json", `{"points": [`)

	if _, err := loadPointSetDir(dir); err == nil {
		t.Error("loadPointSetDir with a malformed table succeeded, want error")
	}
}

// TestLoadPointSetDir_BuildFailure tests that an unconnectable table
// surfaces the build error.
func TestLoadPointSetDir_BuildFailure(t *testing.T) {
	dir := t.TempDir()
	writePointFile(t, dir, "orphan.json",
		`[{"id":0,"parent_id":42}]`)

	_, err := loadPointSetDir(dir)
	if err == nil {
		t.Fatal("loadPointSetDir with an unknown parent succeeded, want error")
	}
	if !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("Error = %v, want graph.ErrNodeNotFound", err)
	}
}

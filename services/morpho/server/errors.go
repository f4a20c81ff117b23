// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import "errors"

// Sentinel errors for the morpho service.
var (
	// ErrGraphNotFound indicates no registered graph has the given ID.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrTooManyGraphs indicates the registry is at its configured capacity.
	ErrTooManyGraphs = errors.New("graph registry is full")

	// ErrUnknownAlgorithm indicates an unrecognized diameter algorithm name.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrStoreNotConfigured indicates persistence was requested but the
	// service has no result store.
	ErrStoreNotConfigured = errors.New("result store not configured")
)

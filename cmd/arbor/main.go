// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command arbor analyzes neuronal morphology graphs.
//
// Arbor builds rooted directed trees from reconstruction point tables
// and computes the graph diameter: the longest root-to-tip path, where
// every root-to-tip path is already the unique shortest path in a tree.
//
// Usage:
//
//	arbor analyze points.json
//	arbor analyze points.json --generic --json
//	arbor batch ./pointsets --workers 8 --store
//	arbor batch ./pointsets --watch
//	arbor bench --nodes 100000
//	arbor serve --config arbor.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/arbor/pkg/logging"
	"github.com/AleutianAI/arbor/pkg/ux"
	"github.com/AleutianAI/arbor/services/morpho/config"
	"github.com/spf13/cobra"
)

var (
	cfg       config.Config
	appLogger *logging.Logger
)

func main() {
	defer func() {
		if appLogger != nil {
			appLogger.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			ux.Error(fmt.Sprintf("Invalid configuration: %v", err))
			os.Exit(CLIExitError)
		}
		cfg = loaded

		if outputMode != "" {
			ux.SetMode(ux.ParseMode(outputMode))
		} else {
			ux.InitMode()
		}

		appLogger = logging.New(cfg.Logging.ToLogging("cli"))
		slog.SetDefault(appLogger.Slog())
	}
}

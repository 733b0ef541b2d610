// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexgate/lexgate/pkg/logging"
	"github.com/lexgate/lexgate/services/scorer/server"
)

// runServe starts the scorer service in the foreground. Same environment
// configuration as the standalone scorer binary; the flags are shortcuts
// for the common ones.
func runServe(cmd *cobra.Command, _ []string) {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		_ = os.Setenv("SCORER_PORT", port)
	}
	if kbDir, _ := cmd.Flags().GetString("kb-dir"); kbDir != "" {
		_ = os.Setenv("LEXGATE_KB_DIR", kbDir)
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		_ = os.Setenv("LEXGATE_DATA_DIR", dataDir)
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "lexgate-scorer",
		JSON:    !prettyOutput(),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := server.InitTracer()
	if err != nil {
		os.Exit(OutputError("setup the OTLP tracer", err))
	}
	defer cleanup(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		os.Exit(OutputError("scorer server failed", err))
	}
}

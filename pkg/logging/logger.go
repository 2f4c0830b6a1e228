// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for resolution service
// components.
//
// Built on Go's standard library slog package: JSON output to stdout by
// default (services run containerized with aggregated stdout), plus
// optional file logging for bare-metal deployments.
//
// # Basic Usage
//
//	logger, closeFn, err := logging.New(logging.Config{Service: "resolution"})
//	if err != nil { ... }
//	defer closeFn()
//	logger.Info("resolution complete", "resolution_id", id)
//
// # Thread Safety
//
// The returned *slog.Logger is safe for concurrent use.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures logger construction. A zero-value Config creates a
// JSON logger at Info level writing to stdout.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// Service is attached to every entry as the "service" attribute.
	Service string

	// LogDir enables file logging alongside stdout. The file is named
	// "{Service}_{YYYY-MM-DD}.log"; the directory is created with 0750
	// permissions when absent.
	LogDir string
}

// New builds a structured logger from the config. The returned close
// function releases the log file when file logging is enabled; it is
// always non-nil and safe to defer.
func New(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	closeFn := func() {}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(cfg.LogDir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
		closeFn = func() { file.Close() }
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: cfg.Level,
	})

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return logger, closeFn, nil
}

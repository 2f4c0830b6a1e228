// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_ZeroConfig(t *testing.T) {
	logger, closeFn, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closeFn()

	if logger == nil {
		t.Fatal("nil logger")
	}
	if !logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info level disabled by default")
	}
	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("debug level enabled by default")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closeFn, err := New(Config{Service: "resolution", LogDir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("resolution complete", "resolution_id", "res-1")
	closeFn()

	name := "resolution_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	var entry map[string]any
	line := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["service"] != "resolution" {
		t.Errorf("service = %v, want resolution", entry["service"])
	}
	if entry["resolution_id"] != "res-1" {
		t.Errorf("resolution_id = %v", entry["resolution_id"])
	}
}

func TestNew_LevelRespected(t *testing.T) {
	logger, closeFn, err := New(Config{Level: slog.LevelWarn})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closeFn()

	if logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info enabled under warn-level config")
	}
	if !logger.Enabled(t.Context(), slog.LevelWarn) {
		t.Error("warn disabled under warn-level config")
	}
}

func TestNew_CloseFnAlwaysSafe(t *testing.T) {
	_, closeFn, err := New(Config{Service: "resolution"})
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	closeFn()
}

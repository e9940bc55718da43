// SPDX-License-Identifier: MIT
package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestShouldLog(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(LevelWarn)
	if shouldLog(LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !shouldLog(LevelError) {
		t.Error("error should pass at warn level")
	}
}

func TestConfigure(t *testing.T) {
	orig := GetLevel()
	defer func() {
		SetLevel(orig)
		_ = Configure(Options{Level: orig.String()})
	}()

	if err := Configure(Options{Level: "nope"}); err == nil {
		t.Error("expected error for unknown level")
	}

	file := filepath.Join(t.TempDir(), "sketchpad.log")
	if err := Configure(Options{Level: "debug", File: file}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if GetLevel() != LevelDebug {
		t.Errorf("level = %v, want DEBUG", GetLevel())
	}
	Debugf("configured %s", "ok")
	_ = Sync()
}

func TestConfigureQuietWritesFileOnly(t *testing.T) {
	orig := GetLevel()
	defer func() {
		SetLevel(orig)
		_ = Configure(Options{Level: orig.String()})
	}()

	file := filepath.Join(t.TempDir(), "quiet.log")
	if err := Configure(Options{Level: "info", File: file, Quiet: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	Infof("frame loop at %d fps", 60)
	_ = Sync()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "frame loop at 60 fps") {
		t.Errorf("log file = %q, want the message", data)
	}

	if err := Configure(Options{Quiet: true}); err != nil {
		t.Fatalf("Configure without outputs: %v", err)
	}
	Errorf("discarded")
}

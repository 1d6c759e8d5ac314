// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		name string
		l    LogLevel
		want string
	}{
		{
			name: "ValidLogLevel",
			l:    LogLevelWarn,
			want: "WARN: ",
		},
		{
			name: "InvalidLogLevel",
			l:    10,
			want: "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tempLogFile := filepath.Join(t.TempDir(), "test.log")
	tests := []struct {
		name     string
		logName  string
		logLevel LogLevel
		wantErr  bool
	}{
		{
			name:     "ValidLogPath",
			logName:  tempLogFile,
			logLevel: LogLevelInfo,
		},
		{
			name:     "EmptyFileName",
			logName:  "",
			logLevel: LogLevelInfo,
		},
		{
			name:     "InvalidLogPath",
			logName:  filepath.Join(t.TempDir(), "missing", "test.log"),
			logLevel: LogLevelInfo,
			wantErr:  true,
		},
		{
			name:     "InvalidLogLevel",
			logName:  tempLogFile,
			logLevel: 10,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLogger(tt.logName, tt.logLevel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got == nil || got.Zap() == nil {
				t.Fatalf("NewLogger() returned nil logger unexpectedly")
			}
			if err := got.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestSharedLogger(t *testing.T) {
	name := filepath.Join(t.TempDir(), "shared.log")
	a, err := NewLogger(name)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLogger(name)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("NewLogger() twice on one file returned distinct loggers")
	}

	a.Info(errors.New("first"))
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	b.Info(errors.New("second"))
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"first", "second"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file misses %q:\n%s", want, data)
		}
	}
}

func TestEmptyLogRemoved(t *testing.T) {
	name := filepath.Join(t.TempDir(), "empty.log")
	l, err := NewLogger(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("empty log file kept, stat error = %v", err)
	}
}

func TestRotate(t *testing.T) {
	name := filepath.Join(t.TempDir(), "rotate.log")
	l, err := NewLogger(name)
	if err != nil {
		t.Fatal(err)
	}
	l.Info(errors.New("before rotation"), "Info message", 123)
	l.file.mu.Lock()
	l.file.created = time.Now().Add(-time.Hour * 24 * 8)
	l.file.mu.Unlock()
	l.Info(errors.New("after rotation"), "Info message", 456)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	old, err := filepath.Glob(name + "_*")
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 1 {
		t.Fatalf("found %d rotated files, want 1", len(old))
	}
	data, err := os.ReadFile(old[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "before rotation") || strings.Contains(string(data), "after rotation") {
		t.Errorf("rotated file content:\n%s", data)
	}
	data, err = os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "after rotation") {
		t.Errorf("current file content:\n%s", data)
	}
}

func TestModLogger_SetLogLevel(t *testing.T) {
	l, err := NewLogger("")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SetLogLevel(LogLevelDebug); err != nil {
		t.Errorf("SetLogLevel(Debug) error = %v", err)
	}
	if err := l.SetLogLevel(10); err == nil {
		t.Errorf("SetLogLevel(10) succeeded")
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		want  []string
	}{
		{"Error", LogLevelError, []string{"FATAL:", "ERROR:"}},
		{"Info", LogLevelInfo, []string{"FATAL:", "ERROR:", "WARN: ", "INFO: "}},
		{"Trace", LogLevelTrace, []string{"FATAL:", "ERROR:", "WARN: ", "INFO: ", "DEBUG:", "TRACE:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := newWithCore(core, tt.level)

			l.Fatal(errors.New("fatal"))
			l.Error(errors.New("error"), "details", 1)
			l.Warn(errors.New("warn"))
			l.Info(errors.New("info"))
			l.Debug(errors.New("debug"))
			l.Trace(errors.New("trace"))

			var got []string
			for _, e := range logs.All() {
				got = append(got, e.ContextMap()["severity"].(string))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("logged severities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPanic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newWithCore(core, LogLevelInfo)
	defer func() {
		if recover() == nil {
			t.Errorf("Panic() did not panic")
		}
		if logs.FilterMessage("boom").Len() != 1 {
			t.Errorf("Panic() entry not written")
		}
	}()
	l.Panic(errors.New("boom"))
}

func TestNilLogger(t *testing.T) {
	var l *ModLogger
	l.Info(errors.New("ignored"))
	if l.Zap() == nil {
		t.Errorf("Zap() on nil logger = nil, want a no-op logger")
	}
	if err := l.Close(); err == nil {
		t.Errorf("Close() on nil logger succeeded")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{in: "fatal", want: LogLevelFatal},
		{in: "WARN", want: LogLevelWarn},
		{in: " info ", want: LogLevelInfo},
		{in: "trace", want: LogLevelTrace},
		{in: "verbose", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package logger implements a leveled module logger on top of zap.
//
// Outputs log to console and log file with weekly file rotation.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DDMMYYYYhhmmss = "20060102150405"

	rotationPeriod = time.Hour * 24 * 7
)

type LogLevel int

const (
	LogLevelFatal LogLevel = iota
	LogLevelPanic
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (level LogLevel) String() string {
	switch level {
	case LogLevelFatal:
		return "FATAL:"
	case LogLevelPanic:
		return "PANIC:"
	case LogLevelError:
		return "ERROR:"
	case LogLevelWarn:
		return "WARN: "
	case LogLevelInfo:
		return "INFO: "
	case LogLevelDebug:
		return "DEBUG:"
	case LogLevelTrace:
		return "TRACE:"
	default:
		return fmt.Sprintf("%d", int(level))
	}
}

func (level LogLevel) valid() bool {
	return level >= LogLevelFatal && level <= LogLevelTrace
}

var levelNames = map[string]LogLevel{
	"fatal": LogLevelFatal,
	"panic": LogLevelPanic,
	"error": LogLevelError,
	"warn":  LogLevelWarn,
	"info":  LogLevelInfo,
	"debug": LogLevelDebug,
	"trace": LogLevelTrace,
}

// ParseLogLevel parses a level name such as "warn" or "DEBUG".
func ParseLogLevel(s string) (LogLevel, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// zapLevel maps level onto the zap severity the entry is written with.
// Fatal entries do not exit the process and Panic entries panic only after
// they have been written.
func (level LogLevel) zapLevel() zapcore.Level {
	switch level {
	case LogLevelFatal, LogLevelPanic, LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// rotatingFile is a zap WriteSyncer that moves the log file aside once it
// is older than rotationPeriod.
type rotatingFile struct {
	mu      sync.Mutex
	file    *os.File
	created time.Time
}

func openRotatingFile(name string) (*rotatingFile, error) {
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot create log file %w", err)
	}
	return &rotatingFile{file: f, created: time.Now()}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	if err := r.rotateLocked(time.Now()); err != nil {
		return 0, err
	}
	return r.file.Write(p)
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotateLocked(now time.Time) error {
	if now.Sub(r.created) < rotationPeriod {
		return nil
	}
	name := r.file.Name()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("cannot close log file %w", err)
	}
	oldLog := name + "_" + now.Format(DDMMYYYYhhmmss)
	if err := os.Rename(name, oldLog); err != nil {
		return fmt.Errorf("cannot create %s file %w", oldLog, err)
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("cannot create log file %w", err)
	}
	r.file = f
	r.created = now
	return nil
}

// close closes the file and removes it when nothing was logged.
func (r *rotatingFile) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	name := r.file.Name()
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("cannot close log file %w", err)
	}
	info, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("cannot get log file info %w", err)
	}
	if info.Size() == 0 {
		if err := os.Remove(name); err != nil {
			return fmt.Errorf("cannot remove empty log file %w", err)
		}
	}
	return nil
}

type ModLogger struct {
	zap   *zap.Logger
	file  *rotatingFile
	name  string
	mu    sync.Mutex
	level LogLevel
	refs  int
}

var (
	registryMu sync.Mutex
	loggers    = make(map[string]*ModLogger)
)

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(DDMMYYYYhhmmss)
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

func newWithCore(core zapcore.Core, level LogLevel) *ModLogger {
	return &ModLogger{
		zap:   zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		level: level,
		refs:  1,
	}
}

// NewLogger returns the logger writing to logName, creating it when needed.
// An empty logName logs to the console only. Loggers for the same file are
// shared and reference counted.
func NewLogger(logName string, logLevel ...LogLevel) (*ModLogger, error) {
	level := LogLevelInfo
	if len(logLevel) > 0 {
		if !logLevel[0].valid() {
			return nil,
				fmt.Errorf("invalid log level %d, expected from %d to %d",
					logLevel[0], LogLevelFatal, LogLevelTrace)
		}
		level = logLevel[0]
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig())
	console := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	if logName == "" {
		return newWithCore(console, level), nil
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := loggers[logName]; ok {
		l.mu.Lock()
		l.refs++
		l.mu.Unlock()
		return l, nil
	}

	if _, err := os.Stat(filepath.Dir(logName)); os.IsNotExist(err) {
		return nil, fmt.Errorf("log directory %s does not exist",
			filepath.Dir(logName))
	}
	file, err := openRotatingFile(logName)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewTee(
		console,
		zapcore.NewCore(enc.Clone(), file, zapcore.DebugLevel),
	)
	l := newWithCore(core, level)
	l.file = file
	l.name = logName
	loggers[logName] = l
	return l, nil
}

// Zap returns the underlying zap logger for libraries that take one.
func (l *ModLogger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.zap
}

// Close drops a reference and closes the log file with the last one.
func (l *ModLogger) Close() error {
	if l == nil {
		return fmt.Errorf("non-existing logger")
	}
	l.mu.Lock()
	l.refs--
	last := l.refs <= 0
	l.mu.Unlock()
	if !last {
		return nil
	}

	_ = l.zap.Sync()
	if l.file == nil {
		return nil
	}
	registryMu.Lock()
	delete(loggers, l.name)
	registryMu.Unlock()
	return l.file.close()
}

func (l *ModLogger) SetLogLevel(logLevel LogLevel) error {
	if !logLevel.valid() {
		return fmt.Errorf("invalid log level %d, expected from %d to %d",
			logLevel, LogLevelFatal, LogLevelTrace)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = logLevel
	return nil
}

func (l *ModLogger) enabled(level LogLevel) bool {
	if l == nil || l.zap == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level >= level
}

func (l *ModLogger) write(level LogLevel, err error, intf []interface{}) {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	fields := []zap.Field{zap.String("severity", level.String())}
	if len(intf) > 0 {
		fields = append(fields, zap.Any("details", intf))
	}
	if ce := l.zap.Check(level.zapLevel(), msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *ModLogger) Fatal(err error, intf ...interface{}) {
	if l.enabled(LogLevelFatal) {
		l.write(LogLevelFatal, err, intf)
	}
}

func (l *ModLogger) Panic(err error, intf ...interface{}) {
	if l.enabled(LogLevelPanic) {
		l.write(LogLevelPanic, err, intf)
		panic(err)
	}
}

func (l *ModLogger) Error(err error, intf ...interface{}) {
	if l.enabled(LogLevelError) {
		l.write(LogLevelError, err, intf)
	}
}

func (l *ModLogger) Warn(err error, intf ...interface{}) {
	if l.enabled(LogLevelWarn) {
		l.write(LogLevelWarn, err, intf)
	}
}

func (l *ModLogger) Info(err error, intf ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.write(LogLevelInfo, err, intf)
	}
}

func (l *ModLogger) Debug(err error, intf ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.write(LogLevelDebug, err, intf)
	}
}

func (l *ModLogger) Trace(err error, intf ...interface{}) {
	if l.enabled(LogLevelTrace) {
		l.write(LogLevelTrace, err, intf)
	}
}

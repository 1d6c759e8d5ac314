// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package logger

import "go.uber.org/zap"

// Logger is the logging surface services depend on. *ModLogger implements
// it.
type Logger interface {
	SetLogLevel(logLevel LogLevel) error
	Zap() *zap.Logger
	Close() error
	Fatal(err error, intf ...interface{})
	Panic(err error, intf ...interface{})
	Error(err error, intf ...interface{})
	Warn(err error, intf ...interface{})
	Info(err error, intf ...interface{})
	Debug(err error, intf ...interface{})
	Trace(err error, intf ...interface{})
}

var _ Logger = (*ModLogger)(nil)

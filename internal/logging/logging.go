// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging is a thin leveled facade over charmbracelet/log so the
// rest of the code does not care about the concrete logger.
package logging

import (
	"io"

	clog "github.com/charmbracelet/log"
)

// SetOutput redirects all log output, e.g. to a buffer in tests.
func SetOutput(w io.Writer) {
	clog.SetOutput(w)
}

// SetDebug enables or disables debug logging for the application.
// Debugf calls are no-ops while debug is disabled.
func SetDebug(enabled bool) {
	if enabled {
		clog.SetLevel(clog.DebugLevel)
	} else {
		clog.SetLevel(clog.InfoLevel)
	}
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	clog.Debugf(format, v...)
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	clog.Infof(format, v...)
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	clog.Warnf(format, v...)
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	clog.Errorf(format, v...)
}

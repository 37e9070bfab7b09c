// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import "github.com/taskboard/taskboard/internal/logging"

var debugEnabled bool

// SetDebug forces DB debug messages to be emitted at info level, regardless
// of the process log level. Disabled by default.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

func dbLogf(format string, v ...any) {
	if debugEnabled {
		logging.Infof(format, v...)
		return
	}
	logging.Debugf(format, v...)
}

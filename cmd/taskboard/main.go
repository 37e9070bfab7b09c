// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Command taskboard administers the Taskboard storage layer.
//
// Usage:
//
//	taskboard migrate
//	taskboard inspect sessions
//	taskboard query "SELECT id, email FROM users WHERE email = ?" ada@example.com
package main

import (
	"os"

	"github.com/taskboard/taskboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

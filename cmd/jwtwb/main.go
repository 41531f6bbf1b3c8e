// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Command jwtwb is the local-first JWT workbench: a CLI and localhost HTTP
// UI sharing one vault and one operational core.
package main

import (
	"os"

	"github.com/jhahn/jwtworkbench/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

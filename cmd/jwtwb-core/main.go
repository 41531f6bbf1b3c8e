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

// Command jwtwb-core is the UI-less workbench variant: the same CLI
// argument surface as jwtwb, minus the "ui" subcommand, for environments
// that should never bind a listening socket.
package main

import (
	"os"

	"github.com/jhahn/jwtworkbench/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteCore())
}

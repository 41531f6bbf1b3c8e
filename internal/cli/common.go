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

package cli

import "time"

// nowUnix returns the current Unix timestamp. Isolated in one place so
// commands that stamp claims (encode --exp-in) go through a single call.
func nowUnix() int64 {
	return time.Now().Unix()
}

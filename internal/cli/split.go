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

import (
	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
)

var splitCmd = &cobra.Command{
	Use:   "split <token>",
	Short: "Print a token's three compact-serialization segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

func runSplit(cmd *cobra.Command, args []string) error {
	seg, err := tokencodec.Split(args[0])
	if err != nil {
		return apperr.Wrap(apperr.InvalidToken, err, "failed to split token")
	}
	return printer().PrintSegments(seg)
}

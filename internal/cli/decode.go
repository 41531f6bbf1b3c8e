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

	"github.com/jhahn/jwtworkbench/internal/keyresolve"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
	"github.com/jhahn/jwtworkbench/internal/vault"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Print a token's header and payload without attempting verification",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	decoded, err := vault.Decode(args[0])
	if err != nil {
		return err
	}
	return printer().PrintDecoded(decoded, false)
}

var (
	inspectSecret     string
	inspectPubKeyFile string
	inspectProject    string
	inspectKeyID      string
	inspectKeyName    string
	inspectHeaderOnly bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Print a token's header and payload, verifying the signature if key material can be resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectSecret, "secret", "", "input-resolver spec for an HMAC secret")
	inspectCmd.Flags().StringVar(&inspectPubKeyFile, "pubkey", "", "input-resolver spec for a PEM public key")
	inspectCmd.Flags().StringVar(&inspectProject, "project", "", "vault project id (project names are not looked up)")
	inspectCmd.Flags().StringVar(&inspectKeyID, "key-id", "", "vault key id (strict match)")
	inspectCmd.Flags().StringVar(&inspectKeyName, "key-name", "", "vault key name (strict match)")
	inspectCmd.Flags().BoolVar(&inspectHeaderOnly, "header-only", false, "decode only the header, tolerating a non-JSON payload")
}

// runInspect decodes unconditionally, then attempts verification only if
// enough key material was supplied to try; a failed resolve or failed
// signature check still prints the decoded contents, labeled UNVERIFIED.
func runInspect(cmd *cobra.Command, args []string) error {
	if inspectHeaderOnly {
		header, alg, kid, err := tokencodec.DecodeHeaderOnly(args[0])
		if err != nil {
			return err
		}
		return printer().PrintHeaderOnly(header, alg, kid)
	}

	decoded, err := vault.Decode(args[0])
	if err != nil {
		return err
	}

	haveKeyHint := inspectSecret != "" || inspectPubKeyFile != "" || inspectProject != ""
	if !haveKeyHint {
		return printer().PrintDecoded(decoded, false)
	}

	keyReq := keyresolve.Request{ProjectID: inspectProject, KeyID: inspectKeyID, KeyName: inspectKeyName}
	if inspectSecret != "" {
		secret, err := resolver.Resolve(inspectSecret)
		if err != nil {
			return printer().PrintDecoded(decoded, false)
		}
		keyReq.Secret = secret
	} else if inspectPubKeyFile != "" {
		pem, err := resolver.Resolve(inspectPubKeyFile)
		if err != nil {
			return printer().PrintDecoded(decoded, false)
		}
		keyReq.PublicKeyPEM = pem
	}

	result, verr := svc.Verify(cmd.Context(), vault.VerifyRequest{Token: args[0], Key: keyReq})
	verified := verr == nil && result != nil && result.Valid
	return printer().PrintDecoded(decoded, verified)
}

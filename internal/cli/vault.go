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
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/bundle"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage projects, keys, and sample tokens",
}

func init() {
	vaultCmd.AddCommand(vaultProjectCmd)
	vaultCmd.AddCommand(vaultKeyCmd)
	vaultCmd.AddCommand(vaultTokenCmd)
	vaultCmd.AddCommand(vaultExportCmd)
	vaultCmd.AddCommand(vaultImportCmd)
}

// --- project ---------------------------------------------------------------

var vaultProjectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage vault projects",
}

var (
	projectDescription string
	projectTags        []string
)

var vaultProjectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Create a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := svc.CreateProject(cmd.Context(), args[0], projectDescription, projectTags)
		if err != nil {
			return err
		}
		return printer().PrintProject(p)
	},
}

var vaultProjectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := svc.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		return printer().PrintProjectList(projects)
	},
}

var vaultProjectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Delete a project and everything it contains",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printer().PrintSuccess("project deleted")
	},
}

var vaultProjectDefaultKeyCmd = &cobra.Command{
	Use:   "set-default-key <project-id> <key-id>",
	Args:  cobra.ExactArgs(2),
	Short: "Set a project's default signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := svc.SetDefaultKey(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printer().PrintProject(p)
	},
}

func init() {
	vaultProjectCreateCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	vaultProjectCreateCmd.Flags().StringArrayVar(&projectTags, "tag", nil, "project tag, repeatable")
	vaultProjectCmd.AddCommand(vaultProjectCreateCmd, vaultProjectListCmd, vaultProjectDeleteCmd, vaultProjectDefaultKeyCmd)
}

// --- key ---------------------------------------------------------------

var vaultKeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage vault keys",
}

var (
	keyProject     string
	keyName        string
	keyKind        string
	keyKid         string
	keyDescription string
	keyTags        []string
	keyAlgorithms  []string
	keyRSABits     int
	keyMaterial    string
	keyPubKeyPEM   string
)

var vaultKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate fresh key material into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := svc.GenerateKey(cmd.Context(), vault.GenerateKeyRequest{
			ProjectID: keyProject, Name: keyName, Kind: vault.KeyKind(keyKind), Kid: keyKid,
			Description: keyDescription, Tags: keyTags,
			Algorithms: keyAlgorithms, RSABits: keyRSABits,
		})
		if err != nil {
			return err
		}
		return printer().PrintKey(k)
	},
}

var vaultKeyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import existing key material into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		material, err := resolver.Resolve(keyMaterial)
		if err != nil {
			return err
		}
		k, err := svc.ImportKey(cmd.Context(), vault.ImportKeyRequest{
			ProjectID: keyProject, Name: keyName, Kind: vault.KeyKind(keyKind), Kid: keyKid,
			Description: keyDescription, Tags: keyTags,
			Algorithms: keyAlgorithms, Material: material, PublicKeyPEM: keyPubKeyPEM,
		})
		if err != nil {
			return err
		}
		return printer().PrintKey(k)
	},
}

var vaultKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys in a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := svc.ListKeys(cmd.Context(), keyProject)
		if err != nil {
			return err
		}
		return printer().PrintKeyList(keys)
	},
}

var vaultKeyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Delete a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteKey(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printer().PrintSuccess("key deleted")
	},
}

var keyRevealConfirm bool

var vaultKeyRevealCmd = &cobra.Command{
	Use:   "reveal <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Print a key's raw material",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keyRevealConfirm {
			return apperr.New(apperr.InvalidInput, "pass --yes to confirm printing raw key material")
		}
		material, err := svc.RevealKey(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printer().PrintRevealedKey(material)
	},
}

func init() {
	for _, c := range []*cobra.Command{vaultKeyGenerateCmd, vaultKeyImportCmd, vaultKeyListCmd} {
		c.Flags().StringVar(&keyProject, "project", "", "vault project id")
	}
	_ = vaultKeyGenerateCmd.MarkFlagRequired("project")
	vaultKeyGenerateCmd.Flags().StringVar(&keyName, "name", "", "key name")
	vaultKeyGenerateCmd.Flags().StringVar(&keyKind, "kind", string(vault.KeyKindHMAC), "hmac|rsa|ecdsa|ed25519")
	vaultKeyGenerateCmd.Flags().StringArrayVar(&keyAlgorithms, "alg", nil, "allowed alg values for this key, repeatable")
	vaultKeyGenerateCmd.Flags().IntVar(&keyRSABits, "rsa-bits", 2048, "RSA modulus size when kind=rsa")
	vaultKeyGenerateCmd.Flags().StringVar(&keyKid, "kid", "", "key identifier to stamp into tokens' kid header")
	vaultKeyGenerateCmd.Flags().StringVar(&keyDescription, "description", "", "key description")
	vaultKeyGenerateCmd.Flags().StringArrayVar(&keyTags, "tag", nil, "key tag, repeatable")

	vaultKeyImportCmd.Flags().StringVar(&keyName, "name", "", "key name")
	vaultKeyImportCmd.Flags().StringVar(&keyKind, "kind", string(vault.KeyKindHMAC), "hmac|rsa|ecdsa|ed25519")
	vaultKeyImportCmd.Flags().StringArrayVar(&keyAlgorithms, "alg", nil, "allowed alg values for this key, repeatable")
	vaultKeyImportCmd.Flags().StringVar(&keyMaterial, "material", "", "input-resolver spec for the key material (secret bytes or PEM)")
	vaultKeyImportCmd.Flags().StringVar(&keyPubKeyPEM, "public-key", "", "PEM public key for asymmetric kinds; derived from the private key when omitted")
	vaultKeyImportCmd.Flags().StringVar(&keyKid, "kid", "", "key identifier to stamp into tokens' kid header")
	vaultKeyImportCmd.Flags().StringVar(&keyDescription, "description", "", "key description")
	vaultKeyImportCmd.Flags().StringArrayVar(&keyTags, "tag", nil, "key tag, repeatable")

	vaultKeyRevealCmd.Flags().BoolVar(&keyRevealConfirm, "yes", false, "confirm printing raw key material")

	vaultKeyCmd.AddCommand(vaultKeyGenerateCmd, vaultKeyImportCmd, vaultKeyListCmd, vaultKeyDeleteCmd, vaultKeyRevealCmd)
}

// --- token ---------------------------------------------------------------

var vaultTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage vault-recorded sample tokens",
}

var (
	tokenProject   string
	tokenKeyID     string
	tokenName      string
	tokenAlgorithm string
)

var vaultTokenCreateCmd = &cobra.Command{
	Use:   "create <token-jws>",
	Args:  cobra.ExactArgs(1),
	Short: "Record an existing JWT under a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := svc.CreateToken(cmd.Context(), vault.CreateTokenRequest{
			ProjectID: tokenProject, KeyID: tokenKeyID, Name: tokenName,
			Algorithm: tokenAlgorithm, Material: []byte(args[0]),
		})
		if err != nil {
			return err
		}
		return printer().PrintTokenRecord(t)
	},
}

var vaultTokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's recorded tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := svc.ListTokens(cmd.Context(), tokenProject)
		if err != nil {
			return err
		}
		return printer().PrintTokenList(tokens)
	},
}

var vaultTokenMaterialCmd = &cobra.Command{
	Use:   "material <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Print a recorded token's compact JWS",
	RunE: func(cmd *cobra.Command, args []string) error {
		material, err := svc.GetTokenMaterial(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printer().PrintToken(string(material), "")
	},
}

var vaultTokenDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Delete a recorded token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteToken(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printer().PrintSuccess("token deleted")
	},
}

func init() {
	vaultTokenCreateCmd.Flags().StringVar(&tokenProject, "project", "", "vault project id")
	vaultTokenCreateCmd.Flags().StringVar(&tokenKeyID, "key-id", "", "vault key id this token was signed with")
	vaultTokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "token name")
	vaultTokenCreateCmd.Flags().StringVar(&tokenAlgorithm, "alg", "", "signing algorithm the token uses")
	vaultTokenListCmd.Flags().StringVar(&tokenProject, "project", "", "vault project id")

	vaultTokenCmd.AddCommand(vaultTokenCreateCmd, vaultTokenListCmd, vaultTokenMaterialCmd, vaultTokenDeleteCmd)
}

// --- export / import ---------------------------------------------------------------

var (
	exportPassphrase string
	exportOut        string
	exportKDF        string
	exportAEAD       string
)

var vaultExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the entire vault as a passphrase-encrypted bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := resolver.Resolve(exportPassphrase)
		if err != nil {
			return err
		}
		env, err := svc.ExportBundle(cmd.Context(), passphrase, kdf.KDFAlgorithm(exportKDF), bundle.AEADAlgorithm(exportAEAD))
		if err != nil {
			return err
		}
		raw, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to marshal bundle")
		}
		if exportOut == "" || exportOut == "-" {
			os.Stdout.Write(raw)
			os.Stdout.Write([]byte("\n"))
			return nil
		}
		if err := os.WriteFile(exportOut, raw, 0o600); err != nil {
			return apperr.Wrap(apperr.IOError, err, "failed to write bundle file")
		}
		return printer().PrintSuccess("exported to " + exportOut)
	},
}

var (
	importPassphrase string
	importFile       string
	importMode       string
)

var vaultImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a passphrase-encrypted bundle into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := resolver.Resolve(importPassphrase)
		if err != nil {
			return err
		}
		raw, err := resolver.Resolve(importFile)
		if err != nil {
			return err
		}
		var env bundle.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return apperr.Wrap(apperr.InvalidInput, err, "bundle is not valid JSON")
		}
		report, err := svc.ImportBundle(cmd.Context(), &env, passphrase, store.RestoreMode(importMode))
		if err != nil {
			return err
		}
		return printer().PrintRestoreReport(report)
	},
}

func init() {
	vaultExportCmd.Flags().StringVar(&exportPassphrase, "passphrase", "prompt", "input-resolver spec for the bundle passphrase")
	vaultExportCmd.Flags().StringVar(&exportOut, "out", "-", "output file, or - for stdout")
	vaultExportCmd.Flags().StringVar(&exportKDF, "kdf", string(kdf.AlgorithmArgon2id), "key derivation function")
	vaultExportCmd.Flags().StringVar(&exportAEAD, "aead", string(bundle.AEADXChaCha20Poly1305), "AEAD cipher")

	vaultImportCmd.Flags().StringVar(&importPassphrase, "passphrase", "prompt", "input-resolver spec for the bundle passphrase")
	vaultImportCmd.Flags().StringVar(&importFile, "file", "", "input-resolver spec for the bundle (@path, -, etc.)")
	vaultImportCmd.Flags().StringVar(&importMode, "mode", string(store.RestoreMerge), "merge|replace")
	_ = vaultImportCmd.MarkFlagRequired("file")
}

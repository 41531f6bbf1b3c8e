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
	"time"

	josejwk "github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/claims"
	"github.com/jhahn/jwtworkbench/internal/keyresolve"
	"github.com/jhahn/jwtworkbench/internal/vault"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

var (
	verifySecret     string
	verifyPubKeyFile string
	verifyJWKSFile   string
	verifyProject    string
	verifyKeyID      string
	verifyKeyName    string
	verifyTryAll         bool
	verifyLeeway         time.Duration
	verifyIssuer         string
	verifySubject        string
	verifyAudience       []string
	verifyRequire        []string
	verifyAllowSingleJWK bool
	verifyAlg            string
	verifyIgnoreExp      bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a JWT's signature and claims",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySecret, "secret", "", "input-resolver spec for an HMAC secret")
	verifyCmd.Flags().StringVar(&verifyPubKeyFile, "pubkey", "", "input-resolver spec for a PEM public key")
	verifyCmd.Flags().StringVar(&verifyJWKSFile, "jwks", "", "input-resolver spec for a JWKS document")
	verifyCmd.Flags().StringVar(&verifyProject, "project", "", "vault project id (project names are not looked up)")
	verifyCmd.Flags().StringVar(&verifyKeyID, "key-id", "", "vault key id (strict match)")
	verifyCmd.Flags().StringVar(&verifyKeyName, "key-name", "", "vault key name (strict match)")
	verifyCmd.Flags().BoolVar(&verifyTryAll, "try-all", false, "try every project key on signature failure, not just the header's kid")
	verifyCmd.Flags().DurationVar(&verifyLeeway, "leeway", 0, "clock-skew allowance for exp/nbf checks")
	verifyCmd.Flags().StringVar(&verifyIssuer, "iss", "", "require this issuer")
	verifyCmd.Flags().StringVar(&verifySubject, "sub", "", "require this subject")
	verifyCmd.Flags().StringArrayVar(&verifyAudience, "aud", nil, "require this audience, repeatable (any match passes)")
	verifyCmd.Flags().StringArrayVar(&verifyRequire, "require", nil, "claim name that must be present, repeatable")
	verifyCmd.Flags().BoolVar(&verifyAllowSingleJWK, "allow-single-jwk", false, "when the JWKS has exactly one key and the token carries no kid, use it")
	verifyCmd.Flags().StringVar(&verifyAlg, "alg", "", "algorithm to use instead of the one named in the token header")
	verifyCmd.Flags().BoolVar(&verifyIgnoreExp, "ignore-exp", false, "skip the exp check even if the token is expired")
}

func runVerify(cmd *cobra.Command, args []string) error {
	keyReq := keyresolve.Request{
		ProjectID: verifyProject,
		KeyID:     verifyKeyID,
		KeyName:   verifyKeyName,
	}

	switch {
	case verifySecret != "":
		secret, err := resolver.Resolve(verifySecret)
		if err != nil {
			return err
		}
		keyReq.Secret = secret
	case verifyPubKeyFile != "":
		pem, err := resolver.Resolve(verifyPubKeyFile)
		if err != nil {
			return err
		}
		keyReq.PublicKeyPEM = pem
	case verifyJWKSFile != "":
		raw, err := resolver.Resolve(verifyJWKSFile)
		if err != nil {
			return err
		}
		var jwks josejwk.JSONWebKeySet
		if err := jwks.UnmarshalJSON(raw); err != nil {
			return apperr.Wrap(apperr.InvalidKey, err, "failed to parse JWKS")
		}
		keyReq.JWKS = &jwks
		keyReq.AllowSingleJWK = verifyAllowSingleJWK
	}

	rules := claims.Rules{
		Leeway:           verifyLeeway,
		IgnoreExp:        verifyIgnoreExp,
		ExpectedIssuer:   verifyIssuer,
		ExpectedSubject:  verifySubject,
		ExpectedAudience: verifyAudience,
		Require:          verifyRequire,
	}

	var alg cryptoprim.Algorithm
	if verifyAlg != "" {
		parsed, err := cryptoprim.ParseAlgorithm(verifyAlg)
		if err != nil {
			return apperr.Wrap(apperr.InvalidInput, err, "invalid --alg")
		}
		alg = parsed
	}

	result, err := svc.Verify(cmd.Context(), vault.VerifyRequest{
		Token: args[0], Key: keyReq, Claims: rules, TryAllKeys: verifyTryAll, Alg: alg,
	})
	if result == nil {
		return err
	}
	if printErr := printer().PrintVerifyResult(result, err); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}
	return nil
}

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
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
	"github.com/jhahn/jwtworkbench/internal/vault"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

var (
	encodeAlg              string
	encodeHeaderJSON       string
	encodePayloadJSON      string
	encodeClaims           []string
	encodeSub              string
	encodeIss              string
	encodeAud              string
	encodeExpSeconds       int64
	encodeSecret           string
	encodeKeyFile          string
	encodeProject          string
	encodeKeyID            string
	encodeKeyName          string
	encodeSaveAs           string
	encodeKid              string
	encodeNoTyp            bool
	encodeKeepPayloadOrder bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Sign and encode a JWT",
	RunE:  runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encodeAlg, "alg", "", "signing algorithm (required; never inferred from a vault key)")
	encodeCmd.Flags().StringVar(&encodeHeaderJSON, "header", "", "JSON object to use as the header base (alg/typ are set automatically)")
	encodeCmd.Flags().StringVar(&encodePayloadJSON, "payload", "{}", "JSON object base for the payload")
	encodeCmd.Flags().StringArrayVar(&encodeClaims, "claim", nil, "claim k=v, repeatable; last write wins")
	encodeCmd.Flags().StringVar(&encodeSub, "sub", "", "sets the sub claim")
	encodeCmd.Flags().StringVar(&encodeIss, "iss", "", "sets the iss claim")
	encodeCmd.Flags().StringVar(&encodeAud, "aud", "", "sets the aud claim")
	encodeCmd.Flags().Int64Var(&encodeExpSeconds, "exp-in", 0, "sets exp to now + N seconds")
	encodeCmd.Flags().StringVar(&encodeSecret, "secret", "", "input-resolver spec for an HMAC secret (literal/@file/-/env:/b64:/prompt)")
	encodeCmd.Flags().StringVar(&encodeKeyFile, "key", "", "input-resolver spec for a PEM private key")
	encodeCmd.Flags().StringVar(&encodeProject, "project", "", "vault project id (project names are not looked up)")
	encodeCmd.Flags().StringVar(&encodeKeyID, "key-id", "", "vault key id (strict match)")
	encodeCmd.Flags().StringVar(&encodeKeyName, "key-name", "", "vault key name (strict match)")
	encodeCmd.Flags().StringVar(&encodeSaveAs, "save-as", "", "record the resulting token in the vault under this name")
	encodeCmd.Flags().StringVar(&encodeKid, "kid", "", "stamp this kid into the header")
	encodeCmd.Flags().BoolVar(&encodeNoTyp, "no-typ", false, "suppress the default typ:JWT header member")
	encodeCmd.Flags().BoolVar(&encodeKeepPayloadOrder, "keep-payload-order", false, "preserve first-seen payload member order instead of sorting lexicographically")
}

func runEncode(cmd *cobra.Command, args []string) error {
	if encodeAlg == "" {
		return apperr.New(apperr.InvalidInput, "--alg is required")
	}
	alg, err := cryptoprim.ParseAlgorithm(encodeAlg)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "invalid algorithm")
	}

	var header map[string]any
	if encodeHeaderJSON != "" {
		if err := json.Unmarshal([]byte(encodeHeaderJSON), &header); err != nil {
			return apperr.Wrap(apperr.InvalidInput, err, "--header is not valid JSON")
		}
	}

	payload, ordered, err := buildPayload()
	if err != nil {
		return err
	}

	req := vault.EncodeRequest{
		Header: header, Payload: payload, Algorithm: alg,
		Kid: encodeKid, SuppressTyp: encodeNoTyp,
		KeepPayloadOrder: encodeKeepPayloadOrder, OrderedPayload: ordered,
		ProjectID: encodeProject, KeyID: encodeKeyID, KeyName: encodeKeyName, SaveAsToken: encodeSaveAs,
	}

	switch {
	case encodeSecret != "":
		secret, err := resolver.Resolve(encodeSecret)
		if err != nil {
			return err
		}
		req.DirectSecret = secret
	case encodeKeyFile != "":
		key, err := resolver.Resolve(encodeKeyFile)
		if err != nil {
			return err
		}
		req.DirectPrivateKeyPEM = key
	}

	token, err := svc.Encode(cmd.Context(), req)
	if err != nil {
		return err
	}

	var savedID string
	if encodeSaveAs != "" && encodeProject != "" {
		tokens, err := svc.ListTokens(cmd.Context(), encodeProject)
		if err == nil {
			for _, t := range tokens {
				if t.Name == encodeSaveAs {
					savedID = t.ID
				}
			}
		}
	}
	return printer().PrintToken(token, savedID)
}

// buildPayload merges the JSON base, standard-claim flags, and repeated
// --claim assignments in that order, matching the encode contract's
// last-write-wins precedence. It returns both the plain map (for the default
// sorted-output path) and the same data as ordered Fields, position fixed at
// first insertion, for --keep-payload-order.
func buildPayload() (map[string]any, []tokencodec.Field, error) {
	payload := map[string]any{}
	var order []string
	set := func(k string, v any) {
		if _, ok := payload[k]; !ok {
			order = append(order, k)
		}
		payload[k] = v
	}

	if encodePayloadJSON != "" {
		var base map[string]any
		if err := json.Unmarshal([]byte(encodePayloadJSON), &base); err != nil {
			return nil, nil, apperr.Wrap(apperr.InvalidInput, err, "--payload is not valid JSON")
		}
		// Best-effort key order for the base JSON: encoding/json gives us
		// no ordering guarantee over a map, so base members sort
		// lexicographically among themselves before the flag-driven claims.
		keys := make([]string, 0, len(base))
		for k := range base {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			set(k, base[k])
		}
	}
	if encodeSub != "" {
		set("sub", encodeSub)
	}
	if encodeIss != "" {
		set("iss", encodeIss)
	}
	if encodeAud != "" {
		set("aud", encodeAud)
	}
	if encodeExpSeconds > 0 {
		set("exp", nowUnix()+encodeExpSeconds)
	}
	for _, kv := range encodeClaims {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, nil, apperr.New(apperr.InvalidInput, "malformed --claim, expected k=v: "+kv)
		}
		set(k, parseClaimValue(v))
	}

	fields := make([]tokencodec.Field, 0, len(order))
	for _, k := range order {
		fields = append(fields, tokencodec.Field{Key: k, Value: payload[k]})
	}
	return payload, fields, nil
}

// parseClaimValue lets --claim carry numbers/booleans/JSON via best-effort
// unmarshal, falling back to the literal string.
func parseClaimValue(v string) any {
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err == nil {
		return parsed
	}
	return v
}

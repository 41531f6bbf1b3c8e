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

package jwt

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"sort"

	josejwk "github.com/go-jose/go-jose/v4"
	"github.com/jhahn/jwtworkbench/pkg/encoding"
)

// KeyFormat names how key material arrived on the wire.
type KeyFormat string

const (
	KeyFormatPEM KeyFormat = "pem"
	KeyFormatDER KeyFormat = "der"
)

// ParsePrivateKey decodes PKCS#8 private key material in the given format.
// password may be nil for unencrypted material.
func ParsePrivateKey(data []byte, format KeyFormat, password []byte) (crypto.PrivateKey, error) {
	switch format {
	case KeyFormatPEM, "":
		return encoding.DecodePrivateKeyPEM(data, password)
	case KeyFormatDER:
		return encoding.DecodePKCS8(data, password)
	default:
		return nil, fmt.Errorf("unsupported key format: %s", format)
	}
}

// ParsePublicKey decodes PKIX public key material in the given format.
func ParsePublicKey(data []byte, format KeyFormat) (crypto.PublicKey, error) {
	switch format {
	case KeyFormatPEM, "":
		return encoding.DecodePublicKeyPEM(data)
	case KeyFormatDER:
		return encoding.DecodePublicKeyPKIX(data)
	default:
		return nil, fmt.Errorf("unsupported key format: %s", format)
	}
}

// PublicKeyAlgorithm reports which x509.PublicKeyAlgorithm a private key
// uses, for PEM block-type selection on export.
func PublicKeyAlgorithm(key crypto.PrivateKey) (x509.PublicKeyAlgorithm, error) {
	kind, err := KeyKindOf(key)
	if err != nil {
		return x509.UnknownPublicKeyAlgorithm, err
	}
	switch kind {
	case KeyKindRSA:
		return x509.RSA, nil
	case KeyKindECDSA:
		return x509.ECDSA, nil
	case KeyKindEd25519:
		return x509.Ed25519, nil
	default:
		return x509.UnknownPublicKeyAlgorithm, fmt.Errorf("key kind %s has no PKIX algorithm", kind)
	}
}

// SelectJWK resolves a single signing/verification key out of a JWK set,
// mirroring the "allow_single_jwk" contract of the original resolver: when
// kid is empty and the set has exactly one key, allowSingle permits using it
// even without a kid match; otherwise a kid is required and must match
// exactly one key, or the resolution is ambiguous.
func SelectJWK(set *josejwk.JSONWebKeySet, kid string, allowSingle bool) (*josejwk.JSONWebKey, error) {
	if set == nil || len(set.Keys) == 0 {
		return nil, fmt.Errorf("key set is empty")
	}

	if kid != "" {
		var matches []josejwk.JSONWebKey
		for _, k := range set.Keys {
			if k.KeyID == kid {
				matches = append(matches, k)
			}
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("no key with kid %q in key set", kid)
		case 1:
			return &matches[0], nil
		default:
			return nil, fmt.Errorf("ambiguous kid %q: %d keys match", kid, len(matches))
		}
	}

	if len(set.Keys) == 1 && allowSingle {
		return &set.Keys[0], nil
	}
	if len(set.Keys) == 1 {
		return nil, fmt.Errorf("key set has one key but no kid was given and allow_single_jwk is false")
	}
	return nil, fmt.Errorf("key set has %d keys; a kid is required to disambiguate", len(set.Keys))
}

// OrderedKIDs returns the kid of every key in set, in stable order, for
// diagnostics on ambiguous resolution.
func OrderedKIDs(set *josejwk.JSONWebKeySet) []string {
	if set == nil {
		return nil
	}
	kids := make([]string, 0, len(set.Keys))
	for _, k := range set.Keys {
		kids = append(kids, k.KeyID)
	}
	sort.Strings(kids)
	return kids
}

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

// Package jwt provides algorithm-family signing and verification over raw
// signing-input bytes. It deliberately avoids golang-jwt/v5's high-level
// jwt.NewWithClaims/jwt.Parse API, which re-serializes claims and cannot
// guarantee byte-exact control over the signing input; callers here own
// header/payload encoding and pass the exact bytes that were, or will be,
// signed.
package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is a JWS "alg" header value this codec knows how to sign or
// verify. "none" is never a member of this set; it is rejected explicitly
// wherever an algorithm string is parsed.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	EdDSA Algorithm = "EdDSA"
)

// KeyKind is the family of key material an Algorithm requires. Binding an
// Algorithm to the KeyKind of the resolved key (rather than trusting the
// token header alone) is what defeats algorithm-confusion attacks such as
// presenting an RSA public key as an HMAC secret.
type KeyKind string

const (
	KeyKindHMAC    KeyKind = "hmac"
	KeyKindRSA     KeyKind = "rsa"
	KeyKindECDSA   KeyKind = "ecdsa"
	KeyKindEd25519 KeyKind = "ed25519"
)

var familyOf = map[Algorithm]KeyKind{
	HS256: KeyKindHMAC, HS384: KeyKindHMAC, HS512: KeyKindHMAC,
	RS256: KeyKindRSA, RS384: KeyKindRSA, RS512: KeyKindRSA,
	PS256: KeyKindRSA, PS384: KeyKindRSA, PS512: KeyKindRSA,
	ES256: KeyKindECDSA, ES384: KeyKindECDSA,
	EdDSA: KeyKindEd25519,
}

// Family returns the KeyKind an Algorithm requires.
func Family(alg Algorithm) (KeyKind, error) {
	kind, ok := familyOf[alg]
	if !ok {
		return "", fmt.Errorf("unsupported algorithm: %s", alg)
	}
	return kind, nil
}

// KeyKindOf inspects key material and reports its KeyKind.
func KeyKindOf(key any) (KeyKind, error) {
	switch key.(type) {
	case []byte:
		return KeyKindHMAC, nil
	case *rsa.PrivateKey, *rsa.PublicKey:
		return KeyKindRSA, nil
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		return KeyKindECDSA, nil
	case ed25519.PrivateKey, ed25519.PublicKey:
		return KeyKindEd25519, nil
	default:
		return "", fmt.Errorf("unsupported key type: %T", key)
	}
}

// ParseAlgorithm normalizes and validates an "alg" header string. It rejects
// "none" (case-insensitively) unconditionally: this codec never signs or
// verifies unsigned tokens.
func ParseAlgorithm(alg string) (Algorithm, error) {
	trimmed := strings.TrimSpace(alg)
	if strings.EqualFold(trimmed, "none") {
		return "", fmt.Errorf("algorithm %q is not permitted", alg)
	}
	upper := strings.ToUpper(trimmed)
	if upper == "EDDSA" {
		return EdDSA, nil
	}
	candidate := Algorithm(upper)
	if _, ok := familyOf[candidate]; ok {
		return candidate, nil
	}
	return "", fmt.Errorf("unsupported algorithm: %s", alg)
}

// checkFamily binds alg to the KeyKind of key, refusing to sign or verify
// when they disagree.
func checkFamily(alg Algorithm, key any) error {
	want, err := Family(alg)
	if err != nil {
		return err
	}
	got, err := KeyKindOf(key)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("algorithm %s requires a %s key, got %s", alg, want, got)
	}
	return nil
}

// Sign returns the raw signature bytes for signingInput ("headerB64.payloadB64",
// exactly as it will appear on the wire) under alg using key. The key's kind
// must match the algorithm family.
func Sign(alg Algorithm, key any, signingInput []byte) ([]byte, error) {
	if err := checkFamily(alg, key); err != nil {
		return nil, err
	}
	method := jwt.GetSigningMethod(string(alg))
	if method == nil {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}
	return method.Sign(string(signingInput), key)
}

// Verify checks signature against signingInput under alg using key. It
// returns nil only if the signature is valid for that exact byte sequence.
func Verify(alg Algorithm, key any, signingInput, signature []byte) error {
	if err := checkFamily(alg, key); err != nil {
		return err
	}
	method := jwt.GetSigningMethod(string(alg))
	if method == nil {
		return fmt.Errorf("unsupported algorithm: %s", alg)
	}
	return method.Verify(string(signingInput), signature, key)
}

// GenerateSecret returns size random bytes (32 when size <= 0) for use as an
// HMAC secret. It refuses any algorithm outside the HMAC family.
func GenerateSecret(alg Algorithm, size int) ([]byte, error) {
	kind, err := Family(alg)
	if err != nil {
		return nil, err
	}
	if kind != KeyKindHMAC {
		return nil, fmt.Errorf("algorithm %s is not HMAC-based", alg)
	}
	if size <= 0 {
		size = 32
	}
	secret := make([]byte, size)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

// CurveFor returns the elliptic curve an ECDSA algorithm signs with.
func CurveFor(alg Algorithm) (elliptic.Curve, error) {
	switch alg {
	case ES256:
		return elliptic.P256(), nil
	case ES384:
		return elliptic.P384(), nil
	default:
		return nil, fmt.Errorf("algorithm %s is not ECDSA", alg)
	}
}

// ExtractKID inspects a decoded JOSE header map for a "kid" member, without
// touching the signature.
func ExtractKID(header map[string]any) string {
	kid, _ := header["kid"].(string)
	return kid
}

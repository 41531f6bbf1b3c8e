// Package tokencodec implements the compact JWS wire format: three
// base64url segments joined by ".", with the signing input defined as the
// raw header and payload segment bytes exactly as they appear on the wire —
// never a re-serialization of decoded JSON. This is what lets Encode/Decode
// round-trip a token whose payload came from an external system with its
// own key ordering or whitespace, without silently altering its signature.
package tokencodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

// Segments holds the three base64url-encoded compact-serialization parts.
type Segments struct {
	HeaderB64    string
	PayloadB64   string
	SignatureB64 string
}

// Decoded is a token split into its wire segments plus the JSON objects
// they decode to (header and payload only; the signature stays opaque
// bytes until a caller verifies it).
type Decoded struct {
	Segments Segments
	Header   map[string]any
	Payload  map[string]any
	RawBody  []byte // decoded payload bytes exactly as they appeared on the wire
	Alg      cryptoprim.Algorithm
	Kid      string
}

var b64 = base64.RawURLEncoding

// Split parses a compact-serialization string into its three segments
// without decoding or validating them.
func Split(token string) (Segments, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Segments{}, fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Segments{}, fmt.Errorf("malformed token: segment %d is empty", i)
		}
	}
	return Segments{HeaderB64: parts[0], PayloadB64: parts[1], SignatureB64: parts[2]}, nil
}

// SigningInput returns the exact bytes that are signed: the raw header and
// payload segments, joined by a literal ".", never re-encoded.
func SigningInput(seg Segments) []byte {
	return []byte(seg.HeaderB64 + "." + seg.PayloadB64)
}

// Compact joins segments into the final wire string.
func Compact(seg Segments) string {
	return seg.HeaderB64 + "." + seg.PayloadB64 + "." + seg.SignatureB64
}

// Decode splits a token and decodes its header and payload, requiring the
// payload to parse as a JSON object. Decode never checks the signature;
// call Verify (or Sign then compare) for that. Use DecodeHeaderOnly when
// the payload's shape isn't known in advance.
func Decode(token string) (*Decoded, error) {
	seg, err := Split(token)
	if err != nil {
		return nil, err
	}

	headerBytes, err := b64.DecodeString(seg.HeaderB64)
	if err != nil {
		return nil, fmt.Errorf("malformed header segment: %w", err)
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("header is not a JSON object: %w", err)
	}

	algStr, _ := header["alg"].(string)
	alg, err := cryptoprim.ParseAlgorithm(algStr)
	if err != nil {
		return nil, fmt.Errorf("header alg: %w", err)
	}

	payloadBytes, err := b64.DecodeString(seg.PayloadB64)
	if err != nil {
		return nil, fmt.Errorf("malformed payload segment: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	d := &Decoded{
		Segments: seg,
		Header:   header,
		Payload:  payload,
		RawBody:  payloadBytes,
		Alg:      alg,
		Kid:      cryptoprim.ExtractKID(header),
	}

	return d, nil
}

// DecodeHeaderOnly decodes just the header segment, tolerating a payload
// that is not JSON. Used by the header-only inspect path.
func DecodeHeaderOnly(token string) (map[string]any, cryptoprim.Algorithm, string, error) {
	seg, err := Split(token)
	if err != nil {
		return nil, "", "", err
	}
	headerBytes, err := b64.DecodeString(seg.HeaderB64)
	if err != nil {
		return nil, "", "", fmt.Errorf("malformed header segment: %w", err)
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, "", "", fmt.Errorf("header is not a JSON object: %w", err)
	}
	algStr, _ := header["alg"].(string)
	alg, err := cryptoprim.ParseAlgorithm(algStr)
	if err != nil {
		return header, "", cryptoprim.ExtractKID(header), nil
	}
	return header, alg, cryptoprim.ExtractKID(header), nil
}

// Field is one ordered header/payload member, used when the caller needs
// insertion order preserved instead of encoding/json's default lexicographic
// key sort.
type Field struct {
	Key   string
	Value any
}

// Options controls Encode's header defaults and payload serialization.
type Options struct {
	// Kid, if non-empty, is stamped into the header's "kid" member.
	Kid string
	// SuppressTyp omits the default "typ":"JWT" header member.
	SuppressTyp bool
	// KeepPayloadOrder, when true, serializes OrderedPayload in its given
	// order instead of sorting Payload's keys lexicographically.
	KeepPayloadOrder bool
	// OrderedPayload carries the claims-merge order (base JSON → standard-
	// claim flags → repeated "claim k=v" in command order); only consulted
	// when KeepPayloadOrder is true.
	OrderedPayload []Field
}

// Encode builds a compact-serialization token: it marshals header and
// payload to canonical JSON (Go's encoding/json sorts object keys), base64url-
// encodes each, computes the signing input from those exact bytes, signs it,
// and joins all three segments.
func Encode(header, payload map[string]any, alg cryptoprim.Algorithm, key any) (string, error) {
	return EncodeWithOptions(header, payload, alg, key, Options{})
}

// EncodeWithOptions is Encode with explicit control over header defaults
// (kid, typ suppression) and payload member ordering.
func EncodeWithOptions(header, payload map[string]any, alg cryptoprim.Algorithm, key any, opts Options) (string, error) {
	if header == nil {
		header = map[string]any{}
	}
	header["alg"] = string(alg)
	if !opts.SuppressTyp {
		if _, ok := header["typ"]; !ok {
			header["typ"] = "JWT"
		}
	}
	if opts.Kid != "" {
		header["kid"] = opts.Kid
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	var payloadBytes []byte
	if opts.KeepPayloadOrder {
		payloadBytes, err = marshalOrdered(opts.OrderedPayload)
	} else {
		payloadBytes, err = json.Marshal(payload)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	seg := Segments{
		HeaderB64:  b64.EncodeToString(headerBytes),
		PayloadB64: b64.EncodeToString(payloadBytes),
	}

	sig, err := cryptoprim.Sign(alg, key, SigningInput(seg))
	if err != nil {
		return "", err
	}
	seg.SignatureB64 = b64.EncodeToString(sig)

	return Compact(seg), nil
}

// marshalOrdered serializes fields as a JSON object in the given order,
// rather than encoding/json's default lexicographic key sort.
func marshalOrdered(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Verify decodes signature bytes from a token's signature segment and
// checks it against the exact header/payload segment bytes carried in the
// token, using alg and key.
func Verify(token string, alg cryptoprim.Algorithm, key any) error {
	seg, err := Split(token)
	if err != nil {
		return err
	}
	sig, err := b64.DecodeString(seg.SignatureB64)
	if err != nil {
		return fmt.Errorf("malformed signature segment: %w", err)
	}
	return cryptoprim.Verify(alg, key, SigningInput(seg), sig)
}

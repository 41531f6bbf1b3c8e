package tokencodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

func TestEncodeDecodeVerifyRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	token, err := Encode(nil, map[string]any{"sub": "user-1", "exp": 9999999999}, cryptoprim.HS256, secret)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, cryptoprim.HS256, decoded.Alg)
	assert.Equal(t, "user-1", decoded.Payload["sub"])

	require.NoError(t, Verify(token, cryptoprim.HS256, secret))
	assert.Error(t, Verify(token, cryptoprim.HS256, []byte("wrong-secret-wrong-secret-wrong")))
}

func TestDecodeRejectsMalformedSegmentCount(t *testing.T) {
	_, err := Decode("only.two")
	assert.Error(t, err)
	_, err = Decode("a.b.c.d")
	assert.Error(t, err)
}

func TestDecodeRejectsNoneAlgorithm(t *testing.T) {
	// header {"alg":"none","typ":"JWT"} base64url, arbitrary payload/sig
	token := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ4In0.c2ln"
	_, err := Decode(token)
	assert.Error(t, err)
}

func TestSigningInputIsRawSegmentsNotReserialized(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	token, err := Encode(nil, map[string]any{"z": 1, "a": 2}, cryptoprim.HS256, secret)
	require.NoError(t, err)

	seg, err := Split(token)
	require.NoError(t, err)
	original := SigningInput(seg)

	decoded, err := Decode(token)
	require.NoError(t, err)
	// Re-encoding the decoded payload map could reorder keys; the signing
	// input we recompute at Verify time must still be the original bytes.
	require.NoError(t, Verify(token, decoded.Alg, secret))
	assert.Equal(t, string(seg.HeaderB64)+"."+string(seg.PayloadB64), string(original))
}

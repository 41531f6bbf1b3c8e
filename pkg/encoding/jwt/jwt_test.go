package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithmRejectsNone(t *testing.T) {
	for _, s := range []string{"none", "None", "NONE"} {
		_, err := ParseAlgorithm(s)
		assert.Error(t, err)
	}
}

func TestParseAlgorithmNormalizesCase(t *testing.T) {
	alg, err := ParseAlgorithm("es256")
	require.NoError(t, err)
	assert.Equal(t, ES256, alg)

	alg, err = ParseAlgorithm("eddsa")
	require.NoError(t, err)
	assert.Equal(t, EdDSA, alg)
}

func TestSignVerifyRoundTripPerAlgorithm(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecKey384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hmacSecret := []byte("super-secret-hmac-key-material!")

	input := []byte("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyIn0")

	cases := []struct {
		alg     Algorithm
		signKey any
		verKey  any
	}{
		{HS256, hmacSecret, hmacSecret},
		{HS384, hmacSecret, hmacSecret},
		{HS512, hmacSecret, hmacSecret},
		{RS256, rsaKey, &rsaKey.PublicKey},
		{PS256, rsaKey, &rsaKey.PublicKey},
		{ES256, ecKey256, &ecKey256.PublicKey},
		{ES384, ecKey384, &ecKey384.PublicKey},
		{EdDSA, edPriv, edPub},
	}

	for _, tc := range cases {
		t.Run(string(tc.alg), func(t *testing.T) {
			sig, err := Sign(tc.alg, tc.signKey, input)
			require.NoError(t, err)
			require.NoError(t, Verify(tc.alg, tc.verKey, input, sig))

			tampered := append([]byte{}, input...)
			tampered[0] ^= 0xFF
			assert.Error(t, Verify(tc.alg, tc.verKey, tampered, sig))
		})
	}
}

func TestSignRejectsAlgorithmConfusion(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = Sign(HS256, rsaKey, []byte("x"))
	assert.Error(t, err)

	_, err = Sign(RS256, []byte("hmac-secret"), []byte("x"))
	assert.Error(t, err)
}

func TestECDSASignatureIsFixedWidthNotDER(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	sig, err := Sign(ES256, key, []byte("payload"))
	require.NoError(t, err)
	// P-256 signatures are r||s, 32 bytes each, never DER-encoded (which
	// would start with 0x30 and vary in length).
	assert.Len(t, sig, 64)
}

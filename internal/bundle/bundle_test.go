package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
)

func samplePayload() *Payload {
	return &Payload{
		Metadata: &store.Snapshot{
			Projects: []*vault.Project{{ID: "p1", Name: "default"}},
			Keys:     []*vault.Key{{ID: "k1", ProjectID: "p1", Name: "signing", Kind: vault.KeyKindHMAC}},
		},
		KeyMaterial: map[string][]byte{"k1": []byte("super-secret")},
	}
}

func TestExportImportRoundTripXChaCha(t *testing.T) {
	env, err := Export(samplePayload(), []byte("correct horse battery staple"), kdf.AlgorithmArgon2id, AEADXChaCha20Poly1305)
	require.NoError(t, err)

	payload, err := Import(env, []byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Equal(t, "default", payload.Metadata.Projects[0].Name)
	assert.Equal(t, []byte("super-secret"), payload.KeyMaterial["k1"])
}

func TestExportImportRoundTripAESGCMAndPBKDF2(t *testing.T) {
	env, err := Export(samplePayload(), []byte("passphrase"), kdf.AlgorithmPBKDF2, AEADAES256GCM)
	require.NoError(t, err)

	payload, err := Import(env, []byte("passphrase"))
	require.NoError(t, err)
	assert.Equal(t, "k1", payload.Metadata.Keys[0].ID)
}

func TestImportWrongPassphraseFails(t *testing.T) {
	env, err := Export(samplePayload(), []byte("right"), kdf.AlgorithmArgon2id, AEADXChaCha20Poly1305)
	require.NoError(t, err)

	_, err = Import(env, []byte("wrong"))
	require.Error(t, err)
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	env, err := Export(samplePayload(), []byte("p"), kdf.AlgorithmArgon2id, AEADXChaCha20Poly1305)
	require.NoError(t, err)
	env.Version = 99

	_, err = Import(env, []byte("p"))
	require.Error(t, err)
}

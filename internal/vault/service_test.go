package vault_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhahn/jwtworkbench/internal/bundle"
	"github.com/jhahn/jwtworkbench/internal/keyresolve"
	"github.com/jhahn/jwtworkbench/internal/secretstore"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

func newTestService(t *testing.T) *vault.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	boltStore, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = boltStore.Close() })
	return vault.New(boltStore, secretstore.NewMemory(), nil)
}

func TestGenerateKeyAndEncodeVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	project, err := svc.CreateProject(ctx, "acme", "", nil)
	require.NoError(t, err)

	key, err := svc.GenerateKey(ctx, vault.GenerateKeyRequest{
		ProjectID: project.ID, Name: "signing", Kind: vault.KeyKindHMAC,
	})
	require.NoError(t, err)

	token, err := svc.Encode(ctx, vault.EncodeRequest{
		Payload:   map[string]any{"sub": "user-1"},
		Algorithm: cryptoprim.HS256,
		ProjectID: project.ID,
		KeyID:     key.ID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	result, err := svc.Verify(ctx, vault.VerifyRequest{
		Token: token,
		Key:   keyresolve.Request{ProjectID: project.ID},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, key.ID, result.UsedKeyID)
}

func TestEncodeWithDirectSecretNeedsNoVault(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	token, err := svc.Encode(ctx, vault.EncodeRequest{
		Payload:      map[string]any{"sub": "user-2"},
		Algorithm:    cryptoprim.HS256,
		DirectSecret: []byte("shared-secret"),
	})
	require.NoError(t, err)

	result, err := svc.Verify(ctx, vault.VerifyRequest{
		Token: token,
		Key:   keyresolve.Request{Secret: []byte("shared-secret")},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestDeleteProjectCascadesSecretMaterial(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	project, err := svc.CreateProject(ctx, "acme", "", nil)
	require.NoError(t, err)
	key, err := svc.GenerateKey(ctx, vault.GenerateKeyRequest{
		ProjectID: project.ID, Name: "signing", Kind: vault.KeyKindHMAC,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProject(ctx, project.ID))

	_, err = svc.RevealKey(ctx, key.ID)
	assert.Error(t, err)
}

func TestExportImportBundlePreservesProjectsAndKeys(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	project, err := svc.CreateProject(ctx, "acme", "", nil)
	require.NoError(t, err)
	_, err = svc.GenerateKey(ctx, vault.GenerateKeyRequest{
		ProjectID: project.ID, Name: "signing", Kind: vault.KeyKindHMAC,
	})
	require.NoError(t, err)

	env, err := svc.ExportBundle(ctx, []byte("passphrase"), kdf.AlgorithmArgon2id, bundle.AEADXChaCha20Poly1305)
	require.NoError(t, err)

	other := newTestService(t)
	report, err := other.ImportBundle(ctx, env, []byte("passphrase"), store.RestoreMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProjectsImported)
	assert.Equal(t, 1, report.KeysImported)

	keys, err := other.ListKeys(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "signing", keys[0].Name)
}

func TestVerifyFailsOnAmbiguousKeySelection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	project, err := svc.CreateProject(ctx, "acme", "", nil)
	require.NoError(t, err)
	_, err = svc.GenerateKey(ctx, vault.GenerateKeyRequest{ProjectID: project.ID, Name: "a", Kind: vault.KeyKindHMAC})
	require.NoError(t, err)
	second, err := svc.GenerateKey(ctx, vault.GenerateKeyRequest{ProjectID: project.ID, Name: "b", Kind: vault.KeyKindHMAC})
	require.NoError(t, err)

	token, err := svc.Encode(ctx, vault.EncodeRequest{
		Payload: map[string]any{"sub": "x"}, Algorithm: cryptoprim.HS256,
		ProjectID: project.ID, KeyID: second.ID,
	})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, vault.VerifyRequest{Token: token, Key: keyresolve.Request{ProjectID: project.ID}})
	assert.Error(t, err)
}

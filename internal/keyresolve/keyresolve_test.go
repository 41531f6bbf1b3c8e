package keyresolve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jhahn/jwtworkbench/internal/secretstore"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

func newResolver(t *testing.T) (*Resolver, context.Context) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	secrets := secretstore.NewMemory()
	return &Resolver{Metadata: db, Secrets: secrets}, context.Background()
}

func seedHMACKey(t *testing.T, r *Resolver, ctx context.Context, projectID, id, name string, secret []byte, createdAt time.Time) {
	t.Helper()
	ref := "sec-" + id
	require.NoError(t, r.Secrets.Put(ctx, ref, secret))
	require.NoError(t, r.Metadata.CreateKey(ctx, &vault.Key{
		ID: id, ProjectID: projectID, Name: name, Kind: vault.KeyKindHMAC,
		StorageRef: ref, CreatedAt: createdAt,
	}))
}

func seedHMACKeyWithKid(t *testing.T, r *Resolver, ctx context.Context, projectID, id, name, kid string, secret []byte, createdAt time.Time) {
	t.Helper()
	ref := "sec-" + id
	require.NoError(t, r.Secrets.Put(ctx, ref, secret))
	require.NoError(t, r.Metadata.CreateKey(ctx, &vault.Key{
		ID: id, ProjectID: projectID, Name: name, Kind: vault.KeyKindHMAC, Kid: kid,
		StorageRef: ref, CreatedAt: createdAt,
	}))
}

func TestResolveByHeaderKidMatch(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	seedHMACKeyWithKid(t, r, ctx, "p1", "k1", "a", "A", []byte("s1"), time.Now())
	seedHMACKeyWithKid(t, r, ctx, "p1", "k2", "b", "B", []byte("s2"), time.Now())

	candidates, err := r.Resolve(ctx, Request{ProjectID: "p1", HeaderKid: "B"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "k2", candidates[0].KeyID)

	candidates, err = r.Resolve(ctx, Request{ProjectID: "p1", HeaderKid: "A"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "k1", candidates[0].KeyID)
}

func TestResolveDirectSecretTakesPrecedence(t *testing.T) {
	r, ctx := newResolver(t)
	candidates, err := r.Resolve(ctx, Request{Secret: []byte("direct")})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, cryptoprim.KeyKindHMAC, candidates[0].Kind)
}

func TestResolveByKeyNameStrictMatch(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	seedHMACKey(t, r, ctx, "p1", "k1", "signing", []byte("s1"), time.Now())
	seedHMACKey(t, r, ctx, "p1", "k2", "other", []byte("s2"), time.Now())

	candidates, err := r.Resolve(ctx, Request{ProjectID: "p1", KeyName: "other"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "k2", candidates[0].KeyID)
}

func TestResolveAmbiguousWithoutSelector(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	seedHMACKey(t, r, ctx, "p1", "k1", "a", []byte("s1"), time.Now())
	seedHMACKey(t, r, ctx, "p1", "k2", "b", []byte("s2"), time.Now())

	_, err := r.Resolve(ctx, Request{ProjectID: "p1"})
	require.Error(t, err)
}

func TestResolveFallsBackToSoleKey(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	seedHMACKey(t, r, ctx, "p1", "k1", "only", []byte("s1"), time.Now())

	candidates, err := r.Resolve(ctx, Request{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "k1", candidates[0].KeyID)
}

func TestResolveTryAllOrdersRemainingByCreatedAt(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	base := time.Now()
	seedHMACKey(t, r, ctx, "p1", "k1", "first", []byte("s1"), base)
	seedHMACKey(t, r, ctx, "p1", "k2", "second", []byte("s2"), base.Add(time.Minute))

	candidates, err := r.Resolve(ctx, Request{ProjectID: "p1", KeyName: "second", TryAll: true})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "k2", candidates[0].KeyID)
	require.Equal(t, "k1", candidates[1].KeyID)
}

func TestResolveProjectDefaultKey(t *testing.T) {
	r, ctx := newResolver(t)
	require.NoError(t, r.Metadata.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default", DefaultKeyID: "k2"}))
	seedHMACKey(t, r, ctx, "p1", "k1", "a", []byte("s1"), time.Now())
	seedHMACKey(t, r, ctx, "p1", "k2", "b", []byte("s2"), time.Now())

	candidates, err := r.Resolve(ctx, Request{ProjectID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "k2", candidates[0].KeyID)
}

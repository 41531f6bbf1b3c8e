package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jhahn/jwtworkbench/internal/vault"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &vault.Project{ID: "p1", Name: "default", CreatedAt: time.Now()}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProjectByName(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, "p1", got.ID)

	require.ErrorIs(t, s.CreateProject(ctx, p), ErrAlreadyExists)

	_, err = s.GetProject(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyCreateRequiresExistingProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.CreateKey(ctx, &vault.Key{ID: "k1", ProjectID: "nope", Name: "signing"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascadesKeysAndTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))
	require.NoError(t, s.CreateKey(ctx, &vault.Key{ID: "k1", ProjectID: "p1", Name: "signing"}))
	require.NoError(t, s.CreateToken(ctx, &vault.Token{ID: "t1", ProjectID: "p1"}))

	require.NoError(t, s.DeleteProject(ctx, "p1"))

	_, err := s.GetKey(ctx, "k1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetToken(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotRestoreMergeSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateProject(ctx, &vault.Project{ID: "p1", Name: "default"}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Projects, 1)

	report, err := s.Restore(ctx, snap, RestoreMerge)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, report.ProjectsImported)
}

func TestSnapshotRestoreReplaceWipesFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateProject(ctx, &vault.Project{ID: "p1", Name: "old"}))

	snap := &Snapshot{Projects: []*vault.Project{{ID: "p2", Name: "new"}}}
	report, err := s.Restore(ctx, snap, RestoreReplace)
	require.NoError(t, err)
	require.Equal(t, 1, report.ProjectsImported)

	_, err = s.GetProject(ctx, "p1")
	require.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetProject(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, "new", got.Name)
}

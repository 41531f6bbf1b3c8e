// Package store implements the metadata store: a structured, transactional
// record of Projects, Keys, and Tokens. It never holds secret bytes — those
// live in the secret store, addressed by StorageRef.
package store

import (
	"context"
	"errors"

	"github.com/jhahn/jwtworkbench/internal/vault"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// MetadataStore is the transactional CRUD surface used by the vault domain.
// Every method runs in its own short transaction; there is no transaction
// spanning several calls (DeleteProject's cascade and Restore are each one
// call, hence one transaction).
type MetadataStore interface {
	CreateProject(ctx context.Context, p *vault.Project) error
	GetProject(ctx context.Context, id string) (*vault.Project, error)
	GetProjectByName(ctx context.Context, name string) (*vault.Project, error)
	ListProjects(ctx context.Context) ([]*vault.Project, error)
	UpdateProject(ctx context.Context, p *vault.Project) error
	DeleteProject(ctx context.Context, id string) error // cascades to Keys and Tokens

	CreateKey(ctx context.Context, k *vault.Key) error
	GetKey(ctx context.Context, id string) (*vault.Key, error)
	ListKeysByProject(ctx context.Context, projectID string) ([]*vault.Key, error)
	FindKeyByName(ctx context.Context, projectID, name string) (*vault.Key, error)
	DeleteKey(ctx context.Context, id string) error

	CreateToken(ctx context.Context, tk *vault.Token) error
	GetToken(ctx context.Context, id string) (*vault.Token, error)
	ListTokensByProject(ctx context.Context, projectID string) ([]*vault.Token, error)
	DeleteToken(ctx context.Context, id string) error

	// AllStorageRefs returns every StorageRef currently referenced by
	// metadata, for the startup orphan sweep in the secret store.
	AllStorageRefs(ctx context.Context) (map[string]struct{}, error)

	// Snapshot and Restore support bundle export/import: Snapshot returns
	// every record; Restore replaces (mode=replace) or merges (mode=merge,
	// skipping name collisions) them inside one transaction.
	Snapshot(ctx context.Context) (*Snapshot, error)
	Restore(ctx context.Context, snap *Snapshot, mode RestoreMode) (*RestoreReport, error)

	Close() error
}

// Snapshot is the full metadata content, used by bundle export/import.
type Snapshot struct {
	Projects []*vault.Project `json:"projects"`
	Keys     []*vault.Key     `json:"keys"`
	Tokens   []*vault.Token   `json:"tokens"`
}

// RestoreMode selects import semantics.
type RestoreMode string

const (
	RestoreMerge   RestoreMode = "merge"
	RestoreReplace RestoreMode = "replace"
)

// RestoreReport summarizes what an import did, for diagnostics.
type RestoreReport struct {
	ProjectsImported int
	KeysImported     int
	TokensImported   int
	Skipped          int
}

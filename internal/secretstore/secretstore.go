// Package secretstore holds the byte-only half of the split-store design:
// key material, symmetric secrets, and stored token bodies, addressed by an
// opaque StorageRef. It never holds structured metadata — that lives in
// internal/store. Two backends are supported, selected by configuration:
// the OS credential manager (macOS Keychain, Windows Credential Manager,
// Secret Service on Linux) and an encrypted file vault, both provided by
// github.com/99designs/keyring.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("secret not found")

// Backend selects which keyring backend to use.
type Backend string

const (
	BackendAuto           Backend = "auto"           // try OS keychain, fall back to file
	BackendOSCredential    Backend = "os-credential"
	BackendEncryptedFile   Backend = "encrypted-file"
)

// Config configures the secret store.
type Config struct {
	Backend        Backend
	ServiceName    string // keyring service/collection name
	FileDir        string // directory for the encrypted-file backend
	FilePassphrase func(prompt string) (string, error)
}

// SecretStore is the byte-only secret CRUD surface.
type SecretStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
	List(ctx context.Context) ([]string, error)
}

type keyringStore struct {
	kr keyring.Keyring
}

// Open opens the configured secret store backend.
func Open(cfg Config) (SecretStore, error) {
	allowed := backendsFor(cfg.Backend)

	kr, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          allowed,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         adaptPassphraseFunc(cfg.FilePassphrase),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return &keyringStore{kr: kr}, nil
}

func backendsFor(b Backend) []keyring.BackendType {
	switch b {
	case BackendOSCredential:
		return []keyring.BackendType{keyring.KeychainBackend, keyring.SecretServiceBackend, keyring.WinCredBackend}
	case BackendEncryptedFile:
		return []keyring.BackendType{keyring.FileBackend}
	default:
		return []keyring.BackendType{keyring.KeychainBackend, keyring.SecretServiceBackend, keyring.WinCredBackend, keyring.FileBackend}
	}
}

func adaptPassphraseFunc(f func(string) (string, error)) keyring.PromptFunc {
	if f == nil {
		return nil
	}
	return keyring.PromptFunc(f)
}

func (s *keyringStore) Put(_ context.Context, ref string, data []byte) error {
	return s.kr.Set(keyring.Item{Key: ref, Data: data})
}

func (s *keyringStore) Get(_ context.Context, ref string) ([]byte, error) {
	item, err := s.kr.Get(ref)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.Data, nil
}

func (s *keyringStore) Delete(_ context.Context, ref string) error {
	err := s.kr.Remove(ref)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *keyringStore) List(_ context.Context) ([]string, error) {
	return s.kr.Keys()
}

// NewRef generates a fresh, opaque storage reference for a new secret.
func NewRef(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

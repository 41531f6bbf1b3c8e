// Package vault defines the Project/Key/Token domain model and the CRUD,
// generate, and reveal operations built on top of the metadata store and
// secret store.
package vault

import "time"

// Project groups a set of Keys and Tokens under one namespace with an
// optional default signing key.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	DefaultKeyID string    `json:"default_key_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KeyKind is the vault's own stored classification of a key; its values
// match pkg/encoding/jwt.KeyKind.
type KeyKind string

const (
	KeyKindHMAC    KeyKind = "hmac"
	KeyKindRSA     KeyKind = "rsa"
	KeyKindECDSA   KeyKind = "ecdsa"
	KeyKindEd25519 KeyKind = "ed25519"
)

// Key is metadata about a signing/verification key. The key material itself
// (secret bytes, or a private key's PEM) never lives here — it is addressed
// by StorageRef into the secret store. Public material for asymmetric keys
// may be cached in PublicKeyPEM since it carries no confidentiality
// requirement.
type Key struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	Kind         KeyKind   `json:"kind"`
	Kid          string    `json:"kid,omitempty"`
	Description  string    `json:"description,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Algorithms   []string  `json:"algorithms"` // JWS "alg" values this key may be used with
	PublicKeyPEM string    `json:"public_key_pem,omitempty"`
	StorageRef   string    `json:"storage_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is a record of a previously encoded or imported JWT: its compact
// serialization is stored by reference in the secret store (it may itself
// contain sensitive claims), with searchable metadata kept here.
type Token struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	KeyID       string    `json:"key_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Algorithm   string    `json:"algorithm"`
	StorageRef  string    `json:"storage_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

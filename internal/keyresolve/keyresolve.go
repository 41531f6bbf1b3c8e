// Package keyresolve implements key resolution precedence for verify and
// inspect operations: direct input material always wins; otherwise a vault
// lookup is attempted following a strict precedence chain, and callers that
// asked for it get every candidate key in try-all order.
package keyresolve

import (
	"context"
	"crypto"
	"fmt"
	"sort"

	josejwk "github.com/go-jose/go-jose/v4"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/secretstore"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/vault"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

// Candidate is one resolved key, ready to hand to cryptoprim.Verify.
type Candidate struct {
	KeyID     string // vault key ID, empty for direct-input material
	Kind      cryptoprim.KeyKind
	Material  any // []byte for HMAC, crypto.PublicKey for asymmetric
}

// Request describes how to resolve a key. Direct fields take precedence
// over the vault fields; only one of Secret/PublicKeyPEM/JWKS/vault lookup
// should be set by a well-formed caller, but Direct wins if more than one
// is present.
type Request struct {
	// Direct input, highest precedence.
	Secret       []byte
	PublicKeyPEM []byte
	JWKS         *josejwk.JSONWebKeySet
	AllowSingleJWK bool

	// Vault lookup, used only when no direct input is set.
	ProjectID string
	KeyID     string
	KeyName   string
	HeaderKid string

	// TryAll requests every plausible candidate (for verify's try-all-keys
	// semantics) instead of just the first match.
	TryAll bool
}

// Resolver resolves Requests against the metadata and secret stores.
type Resolver struct {
	Metadata store.MetadataStore
	Secrets  secretstore.SecretStore
}

// Resolve returns the ordered list of candidates to try. When direct input
// is present, it is the sole candidate. Otherwise the vault precedence
// chain (project+key_id/name strict match > kid match > project default >
// sole project key) determines the first candidate, and if TryAll is set
// the remaining project keys are appended ordered by CreatedAt.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]Candidate, error) {
	if req.Secret != nil {
		return []Candidate{{Kind: cryptoprim.KeyKindHMAC, Material: req.Secret}}, nil
	}
	if req.PublicKeyPEM != nil {
		key, err := cryptoprim.ParsePublicKey(req.PublicKeyPEM, cryptoprim.KeyFormatPEM)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidKey, err, "failed to parse public key")
		}
		kind, err := cryptoprim.KeyKindOf(key)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidKey, err, "unsupported public key type")
		}
		return []Candidate{{Kind: kind, Material: key}}, nil
	}
	if req.JWKS != nil {
		jwk, err := cryptoprim.SelectJWK(req.JWKS, req.HeaderKid, req.AllowSingleJWK)
		if err != nil {
			return nil, apperr.Wrap(apperr.AmbiguousKey, err, "jwks selection failed")
		}
		kind, err := cryptoprim.KeyKindOf(jwk.Key)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidKey, err, "unsupported jwk key type")
		}
		return []Candidate{{KeyID: jwk.KeyID, Kind: kind, Material: jwk.Key}}, nil
	}

	if req.ProjectID == "" {
		return nil, apperr.New(apperr.InvalidInput, "no direct key material and no project given for vault lookup")
	}

	projectKeys, err := r.Metadata.ListKeysByProject(ctx, req.ProjectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to list project keys")
	}
	if len(projectKeys) == 0 {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("project %s has no keys", req.ProjectID))
	}

	chosen, err := r.chooseFirst(ctx, req, projectKeys)
	if err != nil {
		return nil, err
	}

	candidate, err := r.load(ctx, chosen)
	if err != nil {
		return nil, err
	}

	if !req.TryAll {
		return []Candidate{candidate}, nil
	}

	sort.Slice(projectKeys, func(i, j int) bool {
		return projectKeys[i].CreatedAt.Before(projectKeys[j].CreatedAt)
	})
	out := []Candidate{candidate}
	for _, k := range projectKeys {
		if k.ID == chosen.ID {
			continue
		}
		c, err := r.load(ctx, k)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// chooseFirst implements the precedence chain: strict key_id/key_name match
// > kid header match > project default_key_id > sole project key.
func (r *Resolver) chooseFirst(ctx context.Context, req Request, projectKeys []*vault.Key) (*vault.Key, error) {
	if req.KeyID != "" {
		for _, k := range projectKeys {
			if k.ID == req.KeyID {
				return k, nil
			}
		}
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("key_id %s not found in project %s", req.KeyID, req.ProjectID))
	}
	if req.KeyName != "" {
		for _, k := range projectKeys {
			if k.Name == req.KeyName {
				return k, nil
			}
		}
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("key_name %q not found in project %s", req.KeyName, req.ProjectID))
	}
	if req.HeaderKid != "" {
		var matches []*vault.Key
		for _, k := range projectKeys {
			if k.Kid == req.HeaderKid {
				matches = append(matches, k)
			}
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
			// fall through to default/sole-key rules below
		default:
			return nil, apperr.New(apperr.AmbiguousKey, fmt.Sprintf("kid %q matches %d keys in project %s", req.HeaderKid, len(matches), req.ProjectID))
		}
	}

	project, err := r.Metadata.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to load project")
	}
	if project.DefaultKeyID != "" {
		for _, k := range projectKeys {
			if k.ID == project.DefaultKeyID {
				return k, nil
			}
		}
	}

	if len(projectKeys) == 1 {
		return projectKeys[0], nil
	}
	return nil, apperr.New(apperr.AmbiguousKey, fmt.Sprintf("project %s has %d keys and no key_id/key_name/kid/default resolved one", req.ProjectID, len(projectKeys)))
}

func (r *Resolver) load(ctx context.Context, k *vault.Key) (Candidate, error) {
	raw, err := r.Secrets.Get(ctx, k.StorageRef)
	if err != nil {
		return Candidate{}, apperr.Wrap(apperr.StorageError, err, fmt.Sprintf("failed to load secret for key %s", k.ID))
	}

	switch k.Kind {
	case vault.KeyKindHMAC:
		return Candidate{KeyID: k.ID, Kind: cryptoprim.KeyKindHMAC, Material: raw}, nil
	default:
		var material crypto.PublicKey
		if k.PublicKeyPEM != "" {
			material, err = cryptoprim.ParsePublicKey([]byte(k.PublicKeyPEM), cryptoprim.KeyFormatPEM)
		} else {
			material, err = cryptoprim.ParsePublicKey(raw, cryptoprim.KeyFormatPEM)
		}
		if err != nil {
			return Candidate{}, apperr.Wrap(apperr.InvalidKey, err, fmt.Sprintf("failed to parse public key for key %s", k.ID))
		}
		kind, err := cryptoprim.KeyKindOf(material)
		if err != nil {
			return Candidate{}, apperr.Wrap(apperr.InvalidKey, err, "unsupported key kind")
		}
		return Candidate{KeyID: k.ID, Kind: kind, Material: material}, nil
	}
}

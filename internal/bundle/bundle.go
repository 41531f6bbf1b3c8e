// Package bundle implements passphrase-encrypted vault export/import: a
// versioned JSON envelope carrying KDF parameters, an AEAD algorithm and
// nonce, and the ciphertext of a full metadata Snapshot with key material
// embedded (never a storage_ref, since the receiving vault has no access to
// this vault's secret store).
package bundle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
	"github.com/jhahn/jwtworkbench/pkg/crypto/chacha20poly1305"
)

const EnvelopeVersion = 1

// AEADAlgorithm names the payload cipher.
type AEADAlgorithm string

const (
	AEADXChaCha20Poly1305 AEADAlgorithm = "xchacha20-poly1305"
	AEADAES256GCM         AEADAlgorithm = "aes-256-gcm"
)

// Payload is the plaintext structure encrypted inside an Envelope: the
// metadata snapshot plus, per key, the raw secret material (never a
// storage_ref, which is only meaningful in the exporting vault).
type Payload struct {
	Metadata     *store.Snapshot   `json:"metadata"`
	KeyMaterial  map[string][]byte `json:"key_material"`  // keyed by vault.Key.ID
	TokenBodies  map[string][]byte `json:"token_bodies"`  // keyed by vault.Token.ID
}

// Envelope is the on-disk/wire bundle format.
type Envelope struct {
	Version int        `json:"version"`
	KDF     KDFSection `json:"kdf"`
	AEAD    AEADSection `json:"aead"`
}

type KDFSection struct {
	Algorithm string            `json:"algorithm"`
	Salt      string            `json:"salt"` // base64url
	Params    map[string]uint32 `json:"params,omitempty"`
}

type AEADSection struct {
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"` // base64url
	Ciphertext string `json:"ciphertext"` // base64url
}

// Export encrypts payload with a key derived from passphrase using kdfAlg
// and seals it with aeadAlg, returning the envelope ready to marshal.
func Export(payload *Payload, passphrase []byte, kdfAlg kdf.KDFAlgorithm, aeadAlg AEADAlgorithm) (*Envelope, error) {
	adapter, params, err := newKDFAdapter(kdfAlg)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "failed to generate salt")
	}
	params.Salt = salt

	key, err := adapter.DeriveKey(passphrase, &params)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "key derivation failed")
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to marshal bundle payload")
	}

	env := &Envelope{
		Version: EnvelopeVersion,
		KDF: KDFSection{
			Algorithm: string(kdfAlg),
			Salt:      base64.RawURLEncoding.EncodeToString(salt),
			Params:    paramsToMap(params),
		},
	}

	aad, err := json.Marshal(env.KDF)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to marshal AAD")
	}

	switch aeadAlg {
	case AEADXChaCha20Poly1305, "":
		sealed, err := sealXChaCha(key, plaintext, aad)
		if err != nil {
			return nil, err
		}
		env.AEAD = *sealed
	case AEADAES256GCM:
		sealed, err := sealAESGCM(key, plaintext, aad)
		if err != nil {
			return nil, err
		}
		env.AEAD = *sealed
	default:
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported aead algorithm: %s", aeadAlg))
	}

	return env, nil
}

// Import decrypts an envelope with passphrase and returns the payload.
func Import(env *Envelope, passphrase []byte) (*Payload, error) {
	if env.Version != EnvelopeVersion {
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported bundle version: %d", env.Version))
	}

	adapter, params, err := newKDFAdapter(kdf.KDFAlgorithm(env.KDF.Algorithm))
	if err != nil {
		return nil, err
	}
	salt, err := base64.RawURLEncoding.DecodeString(env.KDF.Salt)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "malformed kdf salt")
	}
	params.Salt = salt
	applyParamsFromMap(&params, env.KDF.Params)

	key, err := adapter.DeriveKey(passphrase, &params)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "key derivation failed")
	}

	aad, err := json.Marshal(env.KDF)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to marshal AAD")
	}

	nonce, err := base64.RawURLEncoding.DecodeString(env.AEAD.Nonce)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "malformed nonce")
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(env.AEAD.Ciphertext)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "malformed ciphertext")
	}

	var plaintext []byte
	switch AEADAlgorithm(env.AEAD.Algorithm) {
	case AEADXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, apperr.Wrap(apperr.CryptoError, err, "failed to build aead cipher")
		}
		plaintext, err = aead.Decrypt(&chacha20poly1305.Sealed{Ciphertext: ciphertext, Nonce: nonce}, aad)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "bundle decryption failed: wrong passphrase or corrupt bundle")
		}
	case AEADAES256GCM:
		plaintext, err = openAESGCM(key, nonce, ciphertext, aad)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "bundle decryption failed: wrong passphrase or corrupt bundle")
		}
	default:
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported aead algorithm: %s", env.AEAD.Algorithm))
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "bundle payload is not valid JSON")
	}
	return &payload, nil
}

func sealXChaCha(key, plaintext, aad []byte) (*AEADSection, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "failed to build aead cipher")
	}
	sealed, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "encryption failed")
	}
	return &AEADSection{
		Algorithm:  string(AEADXChaCha20Poly1305),
		Nonce:      base64.RawURLEncoding.EncodeToString(sealed.Nonce),
		Ciphertext: base64.RawURLEncoding.EncodeToString(sealed.Ciphertext),
	}, nil
}

func sealAESGCM(key, plaintext, aad []byte) (*AEADSection, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "failed to build aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "failed to build gcm mode")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "failed to generate nonce")
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, aad)
	return &AEADSection{
		Algorithm:  string(AEADAES256GCM),
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawURLEncoding.EncodeToString(ciphertext),
	}, nil
}

func openAESGCM(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newKDFAdapter(alg kdf.KDFAlgorithm) (kdf.KDFAdapter, kdf.KDFParams, error) {
	switch alg {
	case kdf.AlgorithmArgon2id, "":
		return kdf.NewArgon2idAdapter(), *kdf.DefaultParams(kdf.AlgorithmArgon2id), nil
	case kdf.AlgorithmPBKDF2:
		return kdf.NewPBKDF2Adapter(), *kdf.DefaultParams(kdf.AlgorithmPBKDF2), nil
	default:
		return nil, kdf.KDFParams{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported kdf algorithm: %s", alg))
	}
}

func paramsToMap(p kdf.KDFParams) map[string]uint32 {
	m := map[string]uint32{"key_length": uint32(p.KeyLength)}
	if p.Memory > 0 {
		m["memory"] = p.Memory
	}
	if p.Time > 0 {
		m["time"] = p.Time
	}
	if p.Threads > 0 {
		m["threads"] = uint32(p.Threads)
	}
	if p.Iterations > 0 {
		m["iterations"] = uint32(p.Iterations)
	}
	return m
}

func applyParamsFromMap(p *kdf.KDFParams, m map[string]uint32) {
	if v, ok := m["key_length"]; ok {
		p.KeyLength = int(v)
	}
	if v, ok := m["memory"]; ok {
		p.Memory = v
	}
	if v, ok := m["time"]; ok {
		p.Time = v
	}
	if v, ok := m["threads"]; ok {
		p.Threads = uint8(v)
	}
	if v, ok := m["iterations"]; ok {
		p.Iterations = int(v)
	}
}

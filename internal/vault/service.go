package vault

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/bundle"
	"github.com/jhahn/jwtworkbench/internal/claims"
	"github.com/jhahn/jwtworkbench/internal/keyresolve"
	"github.com/jhahn/jwtworkbench/internal/secretstore"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
	"github.com/jhahn/jwtworkbench/pkg/adapters/logger"
	"github.com/jhahn/jwtworkbench/pkg/adapters/metrics"
	"github.com/jhahn/jwtworkbench/pkg/encoding"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
	"github.com/jhahn/jwtworkbench/pkg/validation"
)

// Service is the single core surface shared by the CLI and the HTTP API: it
// implements every domain operation on top of the metadata store and secret
// store, so neither surface talks to storage directly.
type Service struct {
	Metadata store.MetadataStore
	Secrets  secretstore.SecretStore
	Log      logger.Logger
	Metrics  metrics.MetricsAdapter
}

func New(metadata store.MetadataStore, secrets secretstore.SecretStore, log logger.Logger) *Service {
	return NewWithMetrics(metadata, secrets, log, nil)
}

// NewWithMetrics is New plus an explicit metrics adapter; passing nil falls
// back to a no-op adapter so every call site can record unconditionally.
func NewWithMetrics(metadata store.MetadataStore, secrets secretstore.SecretStore, log logger.Logger, m metrics.MetricsAdapter) *Service {
	if log == nil {
		log = logger.NewSlogAdapter(nil)
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &Service{Metadata: metadata, Secrets: secrets, Log: log, Metrics: m}
}

func (s *Service) resolver() *keyresolve.Resolver {
	return &keyresolve.Resolver{Metadata: s.Metadata, Secrets: s.Secrets}
}

// --- Projects ---------------------------------------------------------

func (s *Service) CreateProject(ctx context.Context, name, description string, tags []string) (*Project, error) {
	if name == "" {
		return nil, apperr.New(apperr.InvalidInput, "project name is required")
	}
	if err := validation.ValidateKeyID(name); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid project name")
	}
	now := time.Now()
	p := &Project{ID: uuid.NewString(), Name: name, Description: description, Tags: dedupeTags(tags), CreatedAt: now, UpdatedAt: now}
	if err := s.Metadata.CreateProject(ctx, p); err != nil {
		return nil, mapStoreErr(err, "failed to create project")
	}
	s.Log.Info("project created", logger.String("project_id", p.ID), logger.String("name", validation.SanitizeForLog(name)))
	return p, nil
}

// dedupeTags applies set semantics on write (no duplicates) while
// preserving first-seen order for the ordered-on-read contract.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	p, err := s.Metadata.GetProject(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "project not found")
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	projects, err := s.Metadata.ListProjects(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "failed to list projects")
	}
	return projects, nil
}

// DeleteProject cascades to its Keys and Tokens. Metadata is removed first
// and the secrets after, the reverse of create's secret-then-metadata
// order: a crash mid-delete leaves a sweepable orphaned secret behind,
// never a metadata row pointing at material that no longer exists.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricProjectDelete, nil) }()

	keys, err := s.Metadata.ListKeysByProject(ctx, id)
	if err != nil {
		return mapStoreErr(err, "failed to list project keys")
	}
	tokens, err := s.Metadata.ListTokensByProject(ctx, id)
	if err != nil {
		return mapStoreErr(err, "failed to list project tokens")
	}
	if err := s.Metadata.DeleteProject(ctx, id); err != nil {
		return mapStoreErr(err, "failed to delete project")
	}
	for _, k := range keys {
		_ = s.Secrets.Delete(ctx, k.StorageRef)
	}
	for _, t := range tokens {
		_ = s.Secrets.Delete(ctx, t.StorageRef)
	}
	return nil
}

// --- Keys ---------------------------------------------------------------

// GenerateKeyRequest describes a new key to mint. RSABits is ignored
// outside the RSA kind (default 2048); HMAC secrets are 32 random bytes and
// ECDSA keys are always P-256.
type GenerateKeyRequest struct {
	ProjectID   string
	Name        string
	Kind        KeyKind
	Kid         string
	Description string
	Tags        []string
	Algorithms  []string
	RSABits     int
}

// GenerateKey creates fresh key material of the requested kind, writes the
// secret first, then the metadata row — the ordering the split-store design
// requires so a crash after the secret write leaves only a sweepable orphan,
// never a metadata row with nothing behind it.
func (s *Service) GenerateKey(ctx context.Context, req GenerateKeyRequest) (*Key, error) {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricKeyGenerate, map[string]string{"kind": string(req.Kind)}) }()

	if req.ProjectID == "" {
		return nil, apperr.New(apperr.InvalidInput, "project_id is required")
	}
	if req.Name != "" {
		if err := validation.ValidateKeyID(req.Name); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid key name")
		}
	}
	if _, err := s.Metadata.GetProject(ctx, req.ProjectID); err != nil {
		return nil, mapStoreErr(err, "project not found")
	}

	var secretBytes []byte
	var publicPEM string
	var err error

	switch req.Kind {
	case KeyKindHMAC:
		size := 32
		secretBytes, err = cryptoprim.GenerateSecret(cryptoprim.HS256, size)
	case KeyKindRSA:
		bits := req.RSABits
		if bits == 0 {
			bits = 2048
		}
		var priv *rsa.PrivateKey
		priv, err = rsa.GenerateKey(rand.Reader, bits)
		if err == nil {
			secretBytes, err = encoding.EncodePrivateKeyPEM(priv, x509.RSA, nil)
			if err == nil {
				var pubDER []byte
				pubDER, err = encoding.EncodePublicKeyPEM(&priv.PublicKey)
				publicPEM = string(pubDER)
			}
		}
	case KeyKindECDSA:
		var priv *ecdsa.PrivateKey
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err == nil {
			secretBytes, err = encoding.EncodePrivateKeyPEM(priv, x509.ECDSA, nil)
			if err == nil {
				var pubDER []byte
				pubDER, err = encoding.EncodePublicKeyPEM(&priv.PublicKey)
				publicPEM = string(pubDER)
			}
		}
	case KeyKindEd25519:
		var pub ed25519.PublicKey
		var priv ed25519.PrivateKey
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		if err == nil {
			secretBytes, err = encoding.EncodePrivateKeyPEM(priv, x509.Ed25519, nil)
			if err == nil {
				var pubDER []byte
				pubDER, err = encoding.EncodePublicKeyPEM(pub)
				publicPEM = string(pubDER)
			}
		}
	default:
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported key kind: %s", req.Kind))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CryptoError, err, "key generation failed")
	}

	ref := secretstore.NewRef("key")
	if err := s.Secrets.Put(ctx, ref, secretBytes); err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to write key material")
	}

	id := uuid.NewString()
	k := &Key{
		ID: id, ProjectID: req.ProjectID, Name: keyNameOrDefault(req.Name, id), Kind: req.Kind,
		Kid: req.Kid, Description: req.Description, Tags: dedupeTags(req.Tags),
		Algorithms: req.Algorithms, PublicKeyPEM: publicPEM, StorageRef: ref, CreatedAt: time.Now(),
	}
	if err := s.Metadata.CreateKey(ctx, k); err != nil {
		_ = s.Secrets.Delete(ctx, ref)
		return nil, mapStoreErr(err, "failed to create key metadata")
	}
	return k, nil
}

// keyNameOrDefault mirrors the spec's auto-generated "key-<id-prefix>" name
// when the caller leaves Name empty.
func keyNameOrDefault(name, id string) string {
	if name != "" {
		return name
	}
	prefix := id
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "key-" + prefix
}

// ImportKeyRequest describes existing key material to register in the
// vault, as opposed to GenerateKey's freshly minted material.
type ImportKeyRequest struct {
	ProjectID    string
	Name         string
	Kind         KeyKind
	Kid          string
	Description  string
	Tags         []string
	Algorithms   []string
	Material     []byte // secret bytes (HMAC) or PEM private key (asymmetric)
	PublicKeyPEM string // asymmetric kinds only; derived from Material when empty
}

func (s *Service) ImportKey(ctx context.Context, req ImportKeyRequest) (*Key, error) {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricKeyImport, map[string]string{"kind": string(req.Kind)}) }()

	if req.ProjectID == "" || len(req.Material) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "project_id and material are required")
	}
	if req.Name != "" {
		if err := validation.ValidateKeyID(req.Name); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid key name")
		}
	}
	if _, err := s.Metadata.GetProject(ctx, req.ProjectID); err != nil {
		return nil, mapStoreErr(err, "project not found")
	}
	publicKeyPEM := req.PublicKeyPEM
	if req.Kind != KeyKindHMAC {
		priv, err := cryptoprim.ParsePrivateKey(req.Material, cryptoprim.KeyFormatPEM, nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidKey, err, "failed to parse private key material")
		}
		// An asymmetric key with no PublicKeyPEM would be unverifiable later
		// (keyresolve has only the private PEM to fall back on, and that
		// fails to parse as a public key), so derive it here if the caller
		// didn't supply one.
		if publicKeyPEM == "" {
			signer, ok := priv.(crypto.Signer)
			if !ok {
				return nil, apperr.New(apperr.InvalidKey, "private key material does not expose a public key")
			}
			pubDER, err := encoding.EncodePublicKeyPEM(signer.Public())
			if err != nil {
				return nil, apperr.Wrap(apperr.InvalidKey, err, "failed to derive public key from private key material")
			}
			publicKeyPEM = string(pubDER)
		}
	}

	ref := secretstore.NewRef("key")
	if err := s.Secrets.Put(ctx, ref, req.Material); err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to write key material")
	}

	id := uuid.NewString()
	k := &Key{
		ID: id, ProjectID: req.ProjectID, Name: keyNameOrDefault(req.Name, id), Kind: req.Kind,
		Kid: req.Kid, Description: req.Description, Tags: dedupeTags(req.Tags),
		Algorithms: req.Algorithms, PublicKeyPEM: publicKeyPEM, StorageRef: ref, CreatedAt: time.Now(),
	}
	if err := s.Metadata.CreateKey(ctx, k); err != nil {
		_ = s.Secrets.Delete(ctx, ref)
		return nil, mapStoreErr(err, "failed to create key metadata")
	}
	return k, nil
}

// DeleteKey removes the metadata row before the secret, the reverse of
// GenerateKey/ImportKey's write order: a crash in between leaves a
// sweepable orphaned secret, never a metadata row pointing at nothing.
func (s *Service) DeleteKey(ctx context.Context, id string) error {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricKeyDelete, nil) }()

	k, err := s.Metadata.GetKey(ctx, id)
	if err != nil {
		return mapStoreErr(err, "key not found")
	}
	if err := s.Metadata.DeleteKey(ctx, id); err != nil {
		return mapStoreErr(err, "failed to delete key metadata")
	}
	_ = s.Secrets.Delete(ctx, k.StorageRef)
	return nil
}

func (s *Service) ListKeys(ctx context.Context, projectID string) ([]*Key, error) {
	keys, err := s.Metadata.ListKeysByProject(ctx, projectID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to list keys")
	}
	return keys, nil
}

// SetDefaultKey designates key as project's default signing key; key must
// already belong to project.
func (s *Service) SetDefaultKey(ctx context.Context, projectID, keyID string) (*Project, error) {
	project, err := s.Metadata.GetProject(ctx, projectID)
	if err != nil {
		return nil, mapStoreErr(err, "project not found")
	}
	key, err := s.Metadata.GetKey(ctx, keyID)
	if err != nil {
		return nil, mapStoreErr(err, "key not found")
	}
	if key.ProjectID != projectID {
		return nil, apperr.New(apperr.InvalidInput, "key does not belong to project")
	}
	project.DefaultKeyID = keyID
	project.UpdatedAt = time.Now()
	if err := s.Metadata.UpdateProject(ctx, project); err != nil {
		return nil, mapStoreErr(err, "failed to update project")
	}
	return project, nil
}

// --- Tokens (vault-managed records, distinct from Encode's optional
// SaveAsToken side effect) ------------------------------------------------

// CreateTokenRequest describes a token record to create; Material, when
// non-nil, is stored immediately, otherwise SetTokenMaterial must be called
// before the token has a body.
type CreateTokenRequest struct {
	ProjectID string
	KeyID     string
	Name      string
	Algorithm string
	Material  []byte
}

func (s *Service) CreateToken(ctx context.Context, req CreateTokenRequest) (*Token, error) {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricTokenCreate, nil) }()

	if req.ProjectID == "" || req.Name == "" {
		return nil, apperr.New(apperr.InvalidInput, "project_id and name are required")
	}
	if err := validation.ValidateKeyID(req.Name); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid token name")
	}
	if _, err := s.Metadata.GetProject(ctx, req.ProjectID); err != nil {
		return nil, mapStoreErr(err, "project not found")
	}

	ref := secretstore.NewRef("token")
	if err := s.Secrets.Put(ctx, ref, req.Material); err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to write token material")
	}

	tk := &Token{
		ID: uuid.NewString(), ProjectID: req.ProjectID, KeyID: req.KeyID, Name: req.Name,
		Algorithm: req.Algorithm, StorageRef: ref, CreatedAt: time.Now(),
	}
	if err := s.Metadata.CreateToken(ctx, tk); err != nil {
		_ = s.Secrets.Delete(ctx, ref)
		return nil, mapStoreErr(err, "failed to create token metadata")
	}
	return tk, nil
}

func (s *Service) ListTokens(ctx context.Context, projectID string) ([]*Token, error) {
	tokens, err := s.Metadata.ListTokensByProject(ctx, projectID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to list tokens")
	}
	return tokens, nil
}

// SetTokenMaterial overwrites the stored body of an existing token record.
func (s *Service) SetTokenMaterial(ctx context.Context, id string, material []byte) error {
	tk, err := s.Metadata.GetToken(ctx, id)
	if err != nil {
		return mapStoreErr(err, "token not found")
	}
	if err := s.Secrets.Put(ctx, tk.StorageRef, material); err != nil {
		return apperr.Wrap(apperr.StorageError, err, "failed to write token material")
	}
	return nil
}

func (s *Service) GetTokenMaterial(ctx context.Context, id string) ([]byte, error) {
	tk, err := s.Metadata.GetToken(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "token not found")
	}
	data, err := s.Secrets.Get(ctx, tk.StorageRef)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to load token material")
	}
	return data, nil
}

// DeleteToken removes the metadata row before the secret, for the same
// crash-safety reason as DeleteKey.
func (s *Service) DeleteToken(ctx context.Context, id string) error {
	tk, err := s.Metadata.GetToken(ctx, id)
	if err != nil {
		return mapStoreErr(err, "token not found")
	}
	if err := s.Metadata.DeleteToken(ctx, id); err != nil {
		return mapStoreErr(err, "failed to delete token metadata")
	}
	_ = s.Secrets.Delete(ctx, tk.StorageRef)
	return nil
}

// RevealKey returns a key's raw secret material. Callers are responsible
// for gating this behind an explicit confirmation; the service never does
// so implicitly.
func (s *Service) RevealKey(ctx context.Context, id string) ([]byte, error) {
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricKeyReveal, nil) }()
	s.Log.Warn("raw key material revealed", logger.String("key_id", id))

	k, err := s.Metadata.GetKey(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "key not found")
	}
	data, err := s.Secrets.Get(ctx, k.StorageRef)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageError, err, "failed to load key material")
	}
	return data, nil
}

// --- Encode / Verify / Decode / Inspect ----------------------------------

// EncodeRequest describes a token to mint, either from vault key material
// or a direct secret/private key.
type EncodeRequest struct {
	Header    map[string]any
	Payload   map[string]any
	Algorithm cryptoprim.Algorithm

	// Kid, when non-empty, is stamped into the header.
	Kid string
	// SuppressTyp omits the default "typ":"JWT" header member.
	SuppressTyp bool
	// KeepPayloadOrder and OrderedPayload mirror tokencodec.Options: when
	// set, the payload is serialized in OrderedPayload's order instead of
	// the default lexicographic key sort.
	KeepPayloadOrder bool
	OrderedPayload   []tokencodec.Field

	DirectSecret        []byte
	DirectPrivateKeyPEM []byte

	ProjectID string
	KeyID     string
	KeyName   string

	// SaveAsToken, when set, records the resulting token in the vault
	// under this name.
	SaveAsToken string
}

func (s *Service) Encode(ctx context.Context, req EncodeRequest) (string, error) {
	start := time.Now()
	defer func() {
		_ = s.Metrics.RecordTimer(ctx, metrics.MetricLatencyEncode, time.Since(start), map[string]string{"alg": string(req.Algorithm)})
		_ = s.Metrics.RecordCounter(ctx, metrics.MetricEncode, map[string]string{"alg": string(req.Algorithm)})
	}()

	var material any
	var vaultKeyID string

	switch {
	case req.DirectSecret != nil:
		material = req.DirectSecret
	case req.DirectPrivateKeyPEM != nil:
		key, err := cryptoprim.ParsePrivateKey(req.DirectPrivateKeyPEM, cryptoprim.KeyFormatPEM, nil)
		if err != nil {
			return "", apperr.Wrap(apperr.InvalidKey, err, "failed to parse private key")
		}
		material = key
	case req.ProjectID != "":
		k, err := s.resolveKeyForSigning(ctx, req.ProjectID, req.KeyID, req.KeyName)
		if err != nil {
			return "", err
		}
		vaultKeyID = k.ID
		raw, err := s.Secrets.Get(ctx, k.StorageRef)
		if err != nil {
			return "", apperr.Wrap(apperr.StorageError, err, "failed to load key material")
		}
		if k.Kind == KeyKindHMAC {
			material = raw
		} else {
			priv, err := cryptoprim.ParsePrivateKey(raw, cryptoprim.KeyFormatPEM, nil)
			if err != nil {
				return "", apperr.Wrap(apperr.InvalidKey, err, "failed to parse stored private key")
			}
			material = priv
		}
	default:
		return "", apperr.New(apperr.InvalidInput, "no key material given: set direct secret/key or project+key")
	}

	token, err := tokencodec.EncodeWithOptions(req.Header, req.Payload, req.Algorithm, material, tokencodec.Options{
		Kid: req.Kid, SuppressTyp: req.SuppressTyp,
		KeepPayloadOrder: req.KeepPayloadOrder, OrderedPayload: req.OrderedPayload,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.CryptoError, err, "signing failed")
	}

	if req.SaveAsToken != "" && req.ProjectID != "" {
		ref := secretstore.NewRef("token")
		if err := s.Secrets.Put(ctx, ref, []byte(token)); err != nil {
			return "", apperr.Wrap(apperr.StorageError, err, "failed to store token body")
		}
		tk := &Token{
			ID: uuid.NewString(), ProjectID: req.ProjectID, KeyID: vaultKeyID, Name: req.SaveAsToken,
			Algorithm: string(req.Algorithm), StorageRef: ref, CreatedAt: time.Now(),
		}
		if err := s.Metadata.CreateToken(ctx, tk); err != nil {
			_ = s.Secrets.Delete(ctx, ref)
			return "", mapStoreErr(err, "failed to record token metadata")
		}
	}

	return token, nil
}

func (s *Service) resolveKeyForSigning(ctx context.Context, projectID, keyID, keyName string) (*Key, error) {
	if keyID != "" {
		k, err := s.Metadata.GetKey(ctx, keyID)
		if err != nil {
			return nil, mapStoreErr(err, "key not found")
		}
		return k, nil
	}
	if keyName != "" {
		k, err := s.Metadata.FindKeyByName(ctx, projectID, keyName)
		if err != nil {
			return nil, mapStoreErr(err, "key not found")
		}
		return k, nil
	}
	project, err := s.Metadata.GetProject(ctx, projectID)
	if err != nil {
		return nil, mapStoreErr(err, "project not found")
	}
	if project.DefaultKeyID != "" {
		k, err := s.Metadata.GetKey(ctx, project.DefaultKeyID)
		if err == nil {
			return k, nil
		}
	}
	keys, err := s.Metadata.ListKeysByProject(ctx, projectID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to list project keys")
	}
	if len(keys) == 1 {
		return keys[0], nil
	}
	return nil, apperr.New(apperr.AmbiguousKey, "no key_id/key_name given and project has no unambiguous default key")
}

// VerifyRequest describes a token to verify, mirroring keyresolve.Request
// plus the claim rules to apply after signature verification.
type VerifyRequest struct {
	Token string
	Key   keyresolve.Request
	Claims claims.Rules
	TryAllKeys bool

	// Alg, when non-empty, supersedes the algorithm named in the token's
	// header. The key-kind binding in cryptoprim.Verify still refuses a
	// mismatched key, so this only changes which signing method is tried,
	// never which key family is trusted.
	Alg cryptoprim.Algorithm
}

// VerifyResult carries both the cryptographic and claim verdicts, plus the
// claim trace for --explain style output.
type VerifyResult struct {
	Valid       bool
	UsedKeyID   string
	ClaimTrace  []claims.Step
	Decoded     *tokencodec.Decoded
}

func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	start := time.Now()
	defer func() {
		_ = s.Metrics.RecordTimer(ctx, metrics.MetricLatencyVerify, time.Since(start), nil)
	}()
	defer func() { _ = s.Metrics.RecordCounter(ctx, metrics.MetricVerify, nil) }()

	decoded, err := tokencodec.Decode(req.Token)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err, "failed to decode token")
	}

	keyReq := req.Key
	keyReq.HeaderKid = decoded.Kid
	keyReq.TryAll = req.TryAllKeys
	candidates, err := s.resolver().Resolve(ctx, keyReq)
	if err != nil {
		return nil, err
	}

	alg := decoded.Alg
	if req.Alg != "" {
		alg = req.Alg
	}

	var lastErr error
	var usedKeyID string
	verified := false
	for _, c := range candidates {
		err := tokencodec.Verify(req.Token, alg, c.Material)
		if err == nil {
			verified = true
			usedKeyID = c.KeyID
			break
		}
		lastErr = err
	}
	if !verified {
		if lastErr == nil {
			lastErr = fmt.Errorf("no candidate keys")
		}
		return nil, apperr.Wrap(apperr.InvalidSignature, lastErr, "signature verification failed for all candidate keys")
	}

	result := claims.Validate(decoded.Payload, req.Claims)
	res := &VerifyResult{Valid: result.Err == nil, UsedKeyID: usedKeyID, ClaimTrace: result.Trace, Decoded: decoded}
	if result.Err != nil {
		return res, result.Err
	}
	return res, nil
}

// Decode returns the unverified header and payload of a token.
func Decode(token string) (*tokencodec.Decoded, error) {
	decoded, err := tokencodec.Decode(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err, "failed to decode token")
	}
	return decoded, nil
}

// --- Bundles --------------------------------------------------------------

func (s *Service) ExportBundle(ctx context.Context, passphrase []byte, kdfAlg kdf.KDFAlgorithm, aeadAlg bundle.AEADAlgorithm) (*bundle.Envelope, error) {
	snap, err := s.Metadata.Snapshot(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "failed to snapshot metadata")
	}
	payload := &bundle.Payload{Metadata: snap, KeyMaterial: map[string][]byte{}, TokenBodies: map[string][]byte{}}
	for _, k := range snap.Keys {
		raw, err := s.Secrets.Get(ctx, k.StorageRef)
		if err != nil {
			return nil, apperr.Wrap(apperr.StorageError, err, fmt.Sprintf("failed to read key material for %s", k.ID))
		}
		payload.KeyMaterial[k.ID] = raw
	}
	for _, t := range snap.Tokens {
		raw, err := s.Secrets.Get(ctx, t.StorageRef)
		if err != nil {
			continue
		}
		payload.TokenBodies[t.ID] = raw
	}
	env, err := bundle.Export(payload, passphrase, kdfAlg, aeadAlg)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (s *Service) ImportBundle(ctx context.Context, env *bundle.Envelope, passphrase []byte, mode store.RestoreMode) (*store.RestoreReport, error) {
	payload, err := bundle.Import(env, passphrase)
	if err != nil {
		return nil, err
	}

	// Replace mode wipes every existing Project/Key/Token before inserting
	// the bundle's contents; their secret-store entries must go too, or
	// they linger as orphans until the next startup sweep.
	if mode == store.RestoreReplace {
		existingRefs, err := s.Metadata.AllStorageRefs(ctx)
		if err != nil {
			return nil, mapStoreErr(err, "failed to enumerate existing secret references")
		}
		for ref := range existingRefs {
			_ = s.Secrets.Delete(ctx, ref)
		}
	}

	// Write secrets first so a crash mid-import leaves only sweepable
	// orphans, never metadata rows pointing at nothing.
	for id, material := range payload.KeyMaterial {
		for _, k := range payload.Metadata.Keys {
			if k.ID == id {
				if err := s.Secrets.Put(ctx, k.StorageRef, material); err != nil {
					return nil, apperr.Wrap(apperr.StorageError, err, "failed to write imported key material")
				}
			}
		}
	}
	for id, body := range payload.TokenBodies {
		for _, t := range payload.Metadata.Tokens {
			if t.ID == id {
				if err := s.Secrets.Put(ctx, t.StorageRef, body); err != nil {
					return nil, apperr.Wrap(apperr.StorageError, err, "failed to write imported token body")
				}
			}
		}
	}

	report, err := s.Metadata.Restore(ctx, payload.Metadata, mode)
	if err != nil {
		return nil, mapStoreErr(err, "failed to restore metadata")
	}
	return report, nil
}

// SweepOrphanSecrets deletes secret-store entries with no matching
// metadata StorageRef, run once at startup per the write-secret-first
// ordering's failure mode.
func (s *Service) SweepOrphanSecrets(ctx context.Context) (int, error) {
	live, err := s.Metadata.AllStorageRefs(ctx)
	if err != nil {
		return 0, mapStoreErr(err, "failed to enumerate live storage refs")
	}
	refs, err := s.Secrets.List(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageError, err, "failed to list secret store entries")
	}
	swept := 0
	for _, ref := range refs {
		if _, ok := live[ref]; !ok {
			if err := s.Secrets.Delete(ctx, ref); err == nil {
				swept++
			}
		}
	}
	return swept, nil
}

func mapStoreErr(err error, msg string) error {
	if err == store.ErrNotFound {
		return apperr.Wrap(apperr.NotFound, err, msg)
	}
	if err == store.ErrAlreadyExists {
		return apperr.Wrap(apperr.InvalidInput, err, msg)
	}
	return apperr.Wrap(apperr.StorageError, err, msg)
}

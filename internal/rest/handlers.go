// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/bundle"
	"github.com/jhahn/jwtworkbench/internal/claims"
	"github.com/jhahn/jwtworkbench/internal/keyresolve"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/kdf"
	cryptoprim "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) csrfHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": s.csrfToken})
}

// --- Projects -------------------------------------------------------------

type createProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (s *Server) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.service.CreateProject(r.Context(), req.Name, req.Description, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) deleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) setDefaultKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyID string `json:"key_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.service.SetDefaultKey(r.Context(), chi.URLParam(r, "id"), req.KeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Keys -------------------------------------------------------------

type generateKeyRequest struct {
	ProjectID   string   `json:"project_id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Kid         string   `json:"kid"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Algorithms  []string `json:"algorithms"`
	RSABits     int      `json:"rsa_bits"`
}

func (s *Server) generateKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k, err := s.service.GenerateKey(r.Context(), vault.GenerateKeyRequest{
		ProjectID: req.ProjectID, Name: req.Name, Kind: vault.KeyKind(req.Kind), Kid: req.Kid,
		Description: req.Description, Tags: req.Tags,
		Algorithms: req.Algorithms, RSABits: req.RSABits,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

type importKeyRequest struct {
	ProjectID    string   `json:"project_id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Kid          string   `json:"kid"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Algorithms   []string `json:"algorithms"`
	Material     string   `json:"material_b64"`
	PublicKeyPEM string   `json:"public_key_pem"`
}

func (s *Server) importKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req importKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	material, err := base64.StdEncoding.DecodeString(req.Material)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, err, "material_b64 is not valid base64"))
		return
	}
	k, err := s.service.ImportKey(r.Context(), vault.ImportKeyRequest{
		ProjectID: req.ProjectID, Name: req.Name, Kind: vault.KeyKind(req.Kind), Kid: req.Kid,
		Description: req.Description, Tags: req.Tags,
		Algorithms: req.Algorithms, Material: material, PublicKeyPEM: req.PublicKeyPEM,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

func (s *Server) listKeysHandler(w http.ResponseWriter, r *http.Request) {
	keys, err := s.service.ListKeys(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) deleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Tokens -------------------------------------------------------------

type createTokenRequest struct {
	ProjectID string `json:"project_id"`
	KeyID     string `json:"key_id"`
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	Material  string `json:"material_b64"`
}

func (s *Server) createTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var material []byte
	if req.Material != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Material)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "material_b64 is not valid base64"))
			return
		}
		material = decoded
	}
	tk, err := s.service.CreateToken(r.Context(), vault.CreateTokenRequest{
		ProjectID: req.ProjectID, KeyID: req.KeyID, Name: req.Name, Algorithm: req.Algorithm, Material: material,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tk)
}

func (s *Server) listTokensHandler(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.service.ListTokens(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) tokenMaterialHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.Method == http.MethodGet {
		data, err := s.service.GetTokenMaterial(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"material_b64": base64.StdEncoding.EncodeToString(data)})
		return
	}
	var req struct {
		Material string `json:"material_b64"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	material, err := base64.StdEncoding.DecodeString(req.Material)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, err, "material_b64 is not valid base64"))
		return
	}
	if err := s.service.SetTokenMaterial(r.Context(), id, material); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) deleteTokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteToken(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Encode / Verify / Decode -------------------------------------------

type encodeRequest struct {
	Header    map[string]any  `json:"header"`
	Payload   json.RawMessage `json:"payload"`
	Algorithm string          `json:"algorithm"`

	Secret        string `json:"secret_b64"`
	PrivateKeyPEM string `json:"private_key_pem"`

	ProjectID   string `json:"project_id"`
	KeyID       string `json:"key_id"`
	KeyName     string `json:"key_name"`
	SaveAsToken string `json:"save_as_token"`

	Kid              string `json:"kid"`
	SuppressTyp      bool   `json:"suppress_typ"`
	KeepPayloadOrder bool   `json:"keep_payload_order"`
}

// orderedFieldsFromJSON recovers a JSON object's top-level members in their
// original wire order, which a plain map[string]any unmarshal loses. Used
// for the keep_payload_order encode path, where the caller's member order
// must survive into the signed payload bytes.
func orderedFieldsFromJSON(raw json.RawMessage) ([]tokencodec.Field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, apperr.New(apperr.InvalidInput, "payload is not a JSON object")
	}

	var fields []tokencodec.Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, apperr.New(apperr.InvalidInput, "payload object key is not a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, tokencodec.Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Server) encodeHandler(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	alg, err := cryptoprim.ParseAlgorithm(req.Algorithm)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, err, "invalid algorithm"))
		return
	}

	var payload map[string]any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "payload is not a JSON object"))
			return
		}
	}

	svcReq := vault.EncodeRequest{
		Header: req.Header, Payload: payload, Algorithm: alg,
		Kid: req.Kid, SuppressTyp: req.SuppressTyp,
		ProjectID: req.ProjectID, KeyID: req.KeyID, KeyName: req.KeyName, SaveAsToken: req.SaveAsToken,
	}
	if req.KeepPayloadOrder && len(req.Payload) > 0 {
		fields, err := orderedFieldsFromJSON(req.Payload)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "payload is not a JSON object"))
			return
		}
		svcReq.KeepPayloadOrder = true
		svcReq.OrderedPayload = fields
	}
	if req.Secret != "" {
		secret, err := base64.StdEncoding.DecodeString(req.Secret)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "secret_b64 is not valid base64"))
			return
		}
		svcReq.DirectSecret = secret
	}
	if req.PrivateKeyPEM != "" {
		svcReq.DirectPrivateKeyPEM = []byte(req.PrivateKeyPEM)
	}

	token, err := s.service.Encode(r.Context(), svcReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type verifyRequest struct {
	Token string `json:"token"`

	Secret       string `json:"secret_b64"`
	PublicKeyPEM string `json:"public_key_pem"`

	ProjectID  string `json:"project_id"`
	KeyID      string `json:"key_id"`
	KeyName    string `json:"key_name"`
	TryAllKeys bool   `json:"try_all_keys"`

	ExpectedIssuer   string   `json:"expected_issuer"`
	ExpectedSubject  string   `json:"expected_subject"`
	ExpectedAudience []string `json:"expected_audience"`
	Require          []string `json:"require"`
	LeewaySeconds    int      `json:"leeway_seconds"`
	IgnoreExp        bool     `json:"ignore_exp"`

	// Alg, when set, supersedes the algorithm named in the token header.
	Alg string `json:"alg"`
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	keyReq := keyresolve.Request{
		ProjectID: req.ProjectID, KeyID: req.KeyID, KeyName: req.KeyName, TryAll: req.TryAllKeys,
	}
	if req.Secret != "" {
		secret, err := base64.StdEncoding.DecodeString(req.Secret)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "secret_b64 is not valid base64"))
			return
		}
		keyReq.Secret = secret
	}
	if req.PublicKeyPEM != "" {
		keyReq.PublicKeyPEM = []byte(req.PublicKeyPEM)
	}

	rules := claims.Rules{
		ExpectedIssuer: req.ExpectedIssuer, ExpectedSubject: req.ExpectedSubject, ExpectedAudience: req.ExpectedAudience,
		Require: req.Require, Leeway: time.Duration(req.LeewaySeconds) * time.Second, IgnoreExp: req.IgnoreExp,
	}

	var alg cryptoprim.Algorithm
	if req.Alg != "" {
		parsed, err := cryptoprim.ParseAlgorithm(req.Alg)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, err, "invalid alg"))
			return
		}
		alg = parsed
	}

	result, err := s.service.Verify(r.Context(), vault.VerifyRequest{Token: req.Token, Key: keyReq, Claims: rules, TryAllKeys: req.TryAllKeys, Alg: alg})
	if err != nil && result == nil {
		writeError(w, err)
		return
	}

	data := map[string]any{
		"valid":       result.Valid,
		"used_key_id": result.UsedKeyID,
		"trace":       result.ClaimTrace,
		"header":      result.Decoded.Header,
		"payload":     result.Decoded.Payload,
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(envelope{OK: false, Data: data, Error: err.Error(), Code: string(apperr.KindOf(err))})
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token      string `json:"token"`
		HeaderOnly bool   `json:"header_only"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HeaderOnly {
		header, alg, kid, err := tokencodec.DecodeHeaderOnly(req.Token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"header": header, "alg": alg, "kid": kid, "verified": false})
		return
	}
	decoded, err := vault.Decode(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"header": decoded.Header, "payload": decoded.Payload, "alg": decoded.Alg, "kid": decoded.Kid, "verified": false})
}

// --- Bundles -------------------------------------------------------------

type exportBundleRequest struct {
	Passphrase string `json:"passphrase"`
	KDF        string `json:"kdf"`
	AEAD       string `json:"aead"`
}

func (s *Server) exportBundleHandler(w http.ResponseWriter, r *http.Request) {
	var req exportBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kdfAlg := kdf.AlgorithmArgon2id
	if req.KDF != "" {
		kdfAlg = kdf.KDFAlgorithm(req.KDF)
	}
	aeadAlg := bundle.AEADXChaCha20Poly1305
	if req.AEAD != "" {
		aeadAlg = bundle.AEADAlgorithm(req.AEAD)
	}
	env, err := s.service.ExportBundle(r.Context(), []byte(req.Passphrase), kdfAlg, aeadAlg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type importBundleRequest struct {
	Envelope   bundle.Envelope `json:"envelope"`
	Passphrase string          `json:"passphrase"`
	Mode       string          `json:"mode"`
}

func (s *Server) importBundleHandler(w http.ResponseWriter, r *http.Request) {
	var req importBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := store.RestoreMerge
	if req.Mode == string(store.RestoreReplace) {
		mode = store.RestoreReplace
	}
	report, err := s.service.ImportBundle(r.Context(), &req.Envelope, []byte(req.Passphrase), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

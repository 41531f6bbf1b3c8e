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
	"encoding/json"
	"log"
	"net/http"

	"github.com/jhahn/jwtworkbench/internal/apperr"
)

// envelope is the wire shape every handler responds with: {ok:true,data} on
// success, {ok:false,error,code} on failure. Both surfaces (this one and the
// CLI) key off the same apperr.Kind so their responses never drift.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{OK: true, Data: data}); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// writeError maps err to its apperr.Kind (defaulting to Internal for
// anything not already an apperr.Error) and writes the matching HTTP
// status, so a caller never needs to duplicate the exit-code table the CLI
// already shares via apperr.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(envelope{OK: false, Error: err.Error(), Code: string(kind)}); encErr != nil {
		log.Printf("failed to encode error response: %v", encErr)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, err, "malformed JSON body"))
		return false
	}
	return true
}

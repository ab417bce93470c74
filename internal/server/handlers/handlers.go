// SPDX-License-Identifier: AGPL-3.0-or-later

// Package handlers implements the HTTP surface of the tracker. Handlers stay
// thin: decode, delegate to a store, map domain errors to problem responses.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/uran-qa/uran/internal/domain"
	"github.com/uran-qa/uran/internal/server/metrics"
	"github.com/uran-qa/uran/internal/server/requestctx"
	"github.com/uran-qa/uran/internal/server/response"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body", response.WithDetail(err.Error())))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	if domain.KindOf(err) == domain.KindForbidden {
		metrics.Default.RecordAuthzDenial("store")
	}
	response.Write(w, response.FromError(err))
}

// principal returns the authenticated user id or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := requestctx.Principal(r.Context())
	if !ok {
		response.Write(w, response.New(http.StatusUnauthorized, "unauthorized"))
		return "", false
	}
	return p, true
}

func methodNotAllowed(w http.ResponseWriter) {
	response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
}

func notFound(w http.ResponseWriter) {
	response.Write(w, response.New(http.StatusNotFound, "not found"))
}

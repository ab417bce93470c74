// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Bearer tokens have the shape "uran.<user-uuid>". The token resolves the
// principal; role resolution against the DB happens per request.
const tokenPrefix = "uran."

func parseAuthorization(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func parseToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token empty")
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		return "", errors.New("malformed token")
	}
	userID := strings.TrimPrefix(token, tokenPrefix)
	if _, err := uuid.Parse(userID); err != nil {
		return "", errors.New("malformed token subject")
	}
	return userID, nil
}

func resolvePrincipal(r *http.Request, cfg Config) (string, error) {
	token := parseAuthorization(r)
	if token == "" {
		if cfg.Dev && cfg.DevUserID != "" {
			return cfg.DevUserID, nil
		}
		return "", errors.New("missing token")
	}
	userID, err := parseToken(token)
	if err != nil && cfg.Dev && cfg.DevUserID != "" {
		// In dev mode fall back to the seeded dev principal on parse failure.
		return cfg.DevUserID, nil
	}
	return userID, err
}

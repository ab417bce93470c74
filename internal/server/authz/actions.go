// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"net/http"
	"strings"

	"github.com/uran-qa/uran/internal/access"
)

// RequiredAction maps a method/path pair to the capability the route needs.
// The stores re-check capabilities with full project scope; this mapping is
// the HTTP layer's first gate and drives denial accounting.
func RequiredAction(method, path string) (access.Action, bool) {
	if !strings.HasPrefix(path, "/api/") {
		return "", false
	}
	trimmed := strings.TrimPrefix(path, "/api/")

	switch method {
	case http.MethodGet:
		if trimmed == "audit" {
			return access.ActionReadAudit, true
		}
		return access.ActionView, true
	case http.MethodPost:
		switch {
		case trimmed == "projects":
			return access.ActionView, true
		case strings.HasPrefix(trimmed, "projects/") && strings.HasSuffix(trimmed, "/members"):
			return access.ActionManageMembers, true
		case trimmed == "suites", trimmed == "testcases",
			strings.HasPrefix(trimmed, "testcases/"),
			trimmed == "templates":
			return access.ActionEditCatalog, true
		case trimmed == "assets":
			return access.ActionManageAssets, true
		case trimmed == "runs", strings.HasPrefix(trimmed, "runs/"),
			trimmed == "attachments":
			return access.ActionExecuteRuns, true
		}
	case http.MethodPut:
		if strings.HasPrefix(trimmed, "fail-reasons/") {
			return access.ActionEditCatalog, true
		}
	case http.MethodPatch:
		switch {
		case strings.HasPrefix(trimmed, "projects/") && strings.Contains(trimmed, "/members/"):
			return access.ActionManageMembers, true
		case strings.HasPrefix(trimmed, "assets/"):
			return access.ActionManageAssets, true
		case strings.HasPrefix(trimmed, "runs/"):
			return access.ActionExecuteRuns, true
		}
	case http.MethodDelete:
		switch {
		case strings.HasPrefix(trimmed, "projects/") && strings.Contains(trimmed, "/members/"):
			return access.ActionManageMembers, true
		case strings.HasPrefix(trimmed, "runs/"):
			return access.ActionExecuteRuns, true
		}
	}
	return "", false
}

// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/domain"
)

type projectsHandler struct {
	access *access.Service
}

// NewProjectsHandler serves /api/projects and the member subroutes.
func NewProjectsHandler(accessSvc *access.Service) http.Handler {
	return &projectsHandler{access: accessSvc}
}

func (h *projectsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects")
	rest = strings.Trim(rest, "/")

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.create(w, r, actor)
		case http.MethodGet:
			h.list(w, r, actor)
		default:
			methodNotAllowed(w)
		}
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "members":
		projectID := parts[0]
		switch r.Method {
		case http.MethodPost:
			h.addMember(w, r, actor, projectID)
		case http.MethodGet:
			h.listMembers(w, r, actor, projectID)
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 3 && parts[1] == "members":
		projectID, userID := parts[0], parts[2]
		switch r.Method {
		case http.MethodPatch:
			h.updateMember(w, r, actor, projectID, userID)
		case http.MethodDelete:
			h.removeMember(w, r, actor, projectID, userID)
		default:
			methodNotAllowed(w)
		}
	default:
		notFound(w)
	}
}

func (h *projectsHandler) create(w http.ResponseWriter, r *http.Request, actor string) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	project, err := h.access.CreateProject(r.Context(), actor, payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, project, http.StatusCreated)
}

func (h *projectsHandler) list(w http.ResponseWriter, r *http.Request, actor string) {
	memberships, err := h.access.ListProjects(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if memberships == nil {
		memberships = []access.ProjectMembership{}
	}
	writeJSON(w, memberships, http.StatusOK)
}

func (h *projectsHandler) addMember(w http.ResponseWriter, r *http.Request, actor, projectID string) {
	var payload struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	member, err := h.access.AddMember(r.Context(), actor, projectID, payload.UserID, domain.ProjectRole(payload.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, member, http.StatusCreated)
}

func (h *projectsHandler) listMembers(w http.ResponseWriter, r *http.Request, actor, projectID string) {
	members, err := h.access.ListMembers(r.Context(), actor, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []domain.Member{}
	}
	writeJSON(w, members, http.StatusOK)
}

func (h *projectsHandler) updateMember(w http.ResponseWriter, r *http.Request, actor, projectID, userID string) {
	var payload struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	member, err := h.access.UpdateMemberRole(r.Context(), actor, projectID, userID, domain.ProjectRole(payload.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, member, http.StatusOK)
}

func (h *projectsHandler) removeMember(w http.ResponseWriter, r *http.Request, actor, projectID, userID string) {
	if err := h.access.RemoveMember(r.Context(), actor, projectID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

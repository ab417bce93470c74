// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"net/http/httptest"
	"testing"
)

func TestParseToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{"valid", "uran.0a65c1fa-7f2e-4b9f-93cd-0f9a6f04f9aa", "0a65c1fa-7f2e-4b9f-93cd-0f9a6f04f9aa", false},
		{"empty", "", "", true},
		{"wrong prefix", "token.0a65c1fa-7f2e-4b9f-93cd-0f9a6f04f9aa", "", true},
		{"not a uuid", "uran.hello", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseToken(tc.token)
			if tc.wantErr != (err != nil) {
				t.Fatalf("parseToken(%q) error = %v, wantErr %v", tc.token, err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("parseToken(%q) = %q, want %q", tc.token, got, tc.want)
			}
		})
	}
}

func TestParseAuthorization(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/api/runs", nil)
	if got := parseAuthorization(req); got != "" {
		t.Fatalf("expected empty token without header, got %q", got)
	}

	req.Header.Set("Authorization", "Bearer abc")
	if got := parseAuthorization(req); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}

	req.Header.Set("Authorization", "bearer abc")
	if got := parseAuthorization(req); got != "abc" {
		t.Fatalf("expected case-insensitive scheme, got %q", got)
	}

	req.Header.Set("Authorization", "Basic abc")
	if got := parseAuthorization(req); got != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", got)
	}
}

func TestResolvePrincipalDevFallback(t *testing.T) {
	t.Parallel()

	cfg := Config{Dev: true, DevUserID: "dev-user"}

	req := httptest.NewRequest("GET", "/api/runs", nil)
	principal, err := resolvePrincipal(req, cfg)
	if err != nil || principal != "dev-user" {
		t.Fatalf("expected dev fallback, got %q, %v", principal, err)
	}

	req.Header.Set("Authorization", "Bearer garbage")
	principal, err = resolvePrincipal(req, cfg)
	if err != nil || principal != "dev-user" {
		t.Fatalf("expected dev fallback on malformed token, got %q, %v", principal, err)
	}

	// Outside dev mode missing tokens are an error.
	principal, err = resolvePrincipal(httptest.NewRequest("GET", "/api/runs", nil), Config{})
	if err == nil || principal != "" {
		t.Fatalf("expected error without dev mode, got %q, %v", principal, err)
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	t.Parallel()

	norm := Config{DataDir: t.TempDir()}.normalize()
	if norm.Bind != defaultBindAddress || norm.Log != defaultLogMode {
		t.Fatalf("unexpected defaults: %+v", norm)
	}
	if norm.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %v", norm.ShutdownTimeout)
	}
	if !norm.MetricsEnabled {
		t.Fatal("metrics default on when unconfigured")
	}
	if !norm.MetricsAllowUnauthenticated {
		t.Fatal("loopback bind exposes metrics without auth")
	}

	public := Config{Bind: "0.0.0.0:8080", DataDir: t.TempDir()}.normalize()
	if public.MetricsAllowUnauthenticated {
		t.Fatal("public bind must not expose metrics without auth")
	}

	disabled := Config{MetricsConfigured: true, MetricsEnabled: false, DataDir: t.TempDir()}.normalize()
	if disabled.MetricsEnabled || disabled.MetricsAllowUnauthenticated {
		t.Fatalf("expected metrics off when explicitly disabled: %+v", disabled)
	}
}

func TestIsLoopbackAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		bind string
		want bool
	}{
		{"127.0.0.1:8080", true},
		{"localhost:8080", true},
		{"[::1]:8080", true},
		{"0.0.0.0:8080", false},
		{"192.168.1.10:8080", false},
		{"*", false},
	}
	for _, tc := range cases {
		if got := isLoopbackAddress(tc.bind); got != tc.want {
			t.Errorf("isLoopbackAddress(%q) = %v, want %v", tc.bind, got, tc.want)
		}
	}
}

func TestTemplateRoute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/api/runs/abc", "/api/runs/{id}"},
		{"/api/runs/abc/status", "/api/runs/{id}/status"},
		{"/api/runs/abc/items", "/api/runs/{id}/items"},
		{"/api/runs/abc/items/def", "/api/runs/{id}/items/{itemID}"},
		{"/api/runs/abc/items/def/result", "/api/runs/{id}/items/{itemID}/result"},
		{"/api/projects/p1/members", "/api/projects/{id}/members"},
		{"/api/projects/p1/members/u1", "/api/projects/{id}/members/{uid}"},
		{"/api/testcases/tc1/versions", "/api/testcases/{id}/versions"},
		{"/api/testcases/tc1/archive", "/api/testcases/{id}/archive"},
		{"/api/fail-reasons/defect", "/api/fail-reasons/{code}"},
		{"/api/runs", "/api/runs"},
	}
	for _, tc := range cases {
		if got := templateRoute(tc.path); got != tc.want {
			t.Errorf("templateRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

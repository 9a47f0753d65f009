package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/store"
)

// newRBACServerAndToken builds a server whose store serves a fixed
// foreign note, comment, and group, and issues a real token for a user
// with the given roles.
func newRBACServerAndToken(t *testing.T, userID int64, roles ...string) (*HTTPServer, string) {
	t.Helper()

	const foreignOwner = int64(99)
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "tester", Roles: roles}, nil
		},
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			return store.Note{ID: id, OwnerID: foreignOwner, Title: "note", Visibility: "public"}, nil
		},
		getCommentFn: func(_ context.Context, id int64) (store.Comment, error) {
			return store.Comment{ID: id, NoteID: 1, AuthorID: foreignOwner, Text: "comment"}, nil
		},
		getGroupFn: func(_ context.Context, id int64) (store.Group, error) {
			return store.Group{ID: id, Name: "team", LeadEditorID: foreignOwner}, nil
		},
		getNotebookFn: func(_ context.Context, id int64) (store.Notebook, error) {
			return store.Notebook{ID: id, Name: "nb", OwnerID: foreignOwner}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:   userID,
		Name:  "tester",
		Roles: roles,
		JTI:   "jti-test",
		Exp:   time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return server, token
}

func TestContributorCannotModifyForeignResources(t *testing.T) {
	server, token := newRBACServerAndToken(t, 1, "Contributor")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "delete foreign note", method: http.MethodDelete, path: "/api/notes/5"},
		{name: "edit foreign note", method: http.MethodPut, path: "/api/notes/5", body: `{"title":"mine now"}`},
		{name: "create group", method: http.MethodPost, path: "/api/groups", body: `{"name":"team"}`},
		{name: "delete foreign group", method: http.MethodDelete, path: "/api/groups/3"},
		{name: "delete foreign comment", method: http.MethodDelete, path: "/api/comments/4"},
		{name: "edit foreign notebook", method: http.MethodPut, path: "/api/notebooks/2", body: `{"name":"renamed"}`},
		{name: "delete tag", method: http.MethodDelete, path: "/api/tags/1"},
		{name: "list users", method: http.MethodGet, path: "/api/users"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server, tc.method, tc.path, tc.body, token)
			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
			}
			if payload := decodePayload(t, rr); payload["code"] != "FORBIDDEN" {
				t.Fatalf("code = %v, want FORBIDDEN", payload["code"])
			}
		})
	}
}

func TestEditorOverridesOnForeignContent(t *testing.T) {
	server, token := newRBACServerAndToken(t, 1, "Editor")

	// Editors can modify any note or comment but not foreign groups or
	// notebooks.
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		deny   bool
	}{
		{name: "edit foreign note", method: http.MethodPut, path: "/api/notes/5", body: `{"title":"edited"}`},
		{name: "delete foreign comment", method: http.MethodDelete, path: "/api/comments/4"},
		{name: "delete tag", method: http.MethodDelete, path: "/api/tags/1"},
		{name: "create group", method: http.MethodPost, path: "/api/groups", body: `{"name":"team"}`, deny: true},
		{name: "edit foreign notebook", method: http.MethodPut, path: "/api/notebooks/2", body: `{"name":"renamed"}`, deny: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server, tc.method, tc.path, tc.body, token)
			if tc.deny && rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
			}
			if !tc.deny && rr.Code == http.StatusForbidden {
				t.Fatalf("expected editor to pass authz, got 403 body=%s", rr.Body.String())
			}
		})
	}
}

func TestLeadEditorCreatesGroupWithMembers(t *testing.T) {
	server, token := newRBACServerAndToken(t, 2, "Lead Editor")

	rr := doRequest(t, server, http.MethodPost, "/api/groups", `{"name":"research","members":[1]}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["name"] != "team" && payload["name"] != "research" {
		// The fake store serves a canned group for the detail reload.
		t.Fatalf("unexpected group view: %v", payload)
	}
}

func TestAdminSeesEverything(t *testing.T) {
	server, token := newRBACServerAndToken(t, 1, "Admin")

	paths := []struct {
		method string
		path   string
		body   string
	}{
		{method: http.MethodGet, path: "/api/users"},
		{method: http.MethodDelete, path: "/api/notes/5"},
		{method: http.MethodDelete, path: "/api/groups/3"},
		{method: http.MethodPut, path: "/api/notebooks/2", body: `{"name":"renamed"}`},
	}
	for _, tc := range paths {
		rr := doRequest(t, server, tc.method, tc.path, tc.body, token)
		if rr.Code == http.StatusForbidden {
			t.Fatalf("admin forbidden on %s %s: %s", tc.method, tc.path, rr.Body.String())
		}
	}
}

func TestMultiRoleUnionGrants(t *testing.T) {
	// Contributor alone cannot create groups; adding Lead Editor grants it.
	server, token := newRBACServerAndToken(t, 2, "Contributor", "Lead Editor")

	rr := doRequest(t, server, http.MethodPost, "/api/groups", `{"name":"research"}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected union of roles to grant create, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func doRequest(t *testing.T, server *HTTPServer, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

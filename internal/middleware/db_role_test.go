package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDBRoleMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, ok := DBRoleFromContext(r.Context()); ok {
			w.Header().Set("X-Role", role)
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name          string
		claims        map[string]interface{}
		allowed       []string
		expectStatus  int
		expectRole    string
		expectMessage string
		expectCode    string
	}{
		{
			name:          "missing auth context",
			expectStatus:  http.StatusUnauthorized,
			expectMessage: "missing authentication",
			expectCode:    "unauthorized",
		},
		{
			name:          "missing db_role claim",
			claims:        map[string]interface{}{},
			expectStatus:  http.StatusUnauthorized,
			expectMessage: "missing db_role claim",
			expectCode:    "unauthorized",
		},
		{
			name:          "invalid db_role type",
			claims:        map[string]interface{}{"db_role": 123},
			expectStatus:  http.StatusBadRequest,
			expectMessage: "invalid db_role claim type",
			expectCode:    "bad_request",
		},
		{
			name:          "invalid db_role value",
			claims:        map[string]interface{}{"db_role": "superuser"},
			allowed:       []string{"app_viewer", "app_analyst"},
			expectStatus:  http.StatusUnauthorized,
			expectMessage: "invalid database role: superuser",
			expectCode:    "unauthorized",
		},
		{
			name:         "valid db_role value",
			claims:       map[string]interface{}{"db_role": "app_analyst"},
			allowed:      []string{"app_viewer", "app_analyst"},
			expectStatus: http.StatusOK,
			expectRole:   "app_analyst",
		},
		{
			name:         "any role when allow list is empty",
			claims:       map[string]interface{}{"db_role": "reporting"},
			expectStatus: http.StatusOK,
			expectRole:   "reporting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.claims != nil {
				req = req.WithContext(WithAuth(req.Context(), AuthContext{Subject: "user-1", Claims: tt.claims}))
			}
			rec := httptest.NewRecorder()
			DBRoleMiddleware("db_role", tt.allowed, nil)(handler).ServeHTTP(rec, req)

			if rec.Code != tt.expectStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.expectStatus)
			}
			if tt.expectRole != "" && rec.Header().Get("X-Role") != tt.expectRole {
				t.Fatalf("role = %q, want %q", rec.Header().Get("X-Role"), tt.expectRole)
			}
			if tt.expectMessage == "" {
				return
			}
			var payload struct {
				Errors []struct {
					Message    string            `json:"message"`
					Extensions map[string]string `json:"extensions"`
				} `json:"errors"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if len(payload.Errors) != 1 || payload.Errors[0].Message != tt.expectMessage {
				t.Fatalf("errors = %+v, want message %q", payload.Errors, tt.expectMessage)
			}
			if payload.Errors[0].Extensions["code"] != tt.expectCode {
				t.Fatalf("code = %q, want %q", payload.Errors[0].Extensions["code"], tt.expectCode)
			}
		})
	}
}

func TestDBRoleFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := DBRoleFromContext(WithDBRole(req.Context(), "")); ok {
		t.Fatal("empty role should not be reported")
	}
}

package middleware

import (
	"encoding/json"
	"net/http"

	"relquery/internal/apperr"
)

// WriteError renders err as a GraphQL style error body with the status of its kind.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeErrorBody(w, kind.HTTPStatus(), err.Error(), kind.Code())
}

func writeErrorBody(w http.ResponseWriter, status int, message, code string) {
	payload := map[string]any{
		"errors": []map[string]any{{
			"message":    message,
			"extensions": map[string]any{"code": code},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

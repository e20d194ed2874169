// ABOUTME: Operator API handlers
// ABOUTME: Revocation rotates an identity's signing secret so every issued token stops verifying

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/gigs-gateway/internal/auth"
	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
)

type revokeResponse struct {
	ID      string `json:"uuid"`
	Revoked bool   `json:"revoked"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	secret, err := token.NewSecret()
	if err != nil {
		g.logger.Error("generating secret", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	err = g.store.RotateSecret(r.Context(), id, secret)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
		return
	}
	if err != nil {
		g.logger.Error("revoking identity", "uuid", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	operator := ""
	if ac := auth.FromContext(r.Context()); ac != nil {
		operator = ac.Operator
	}
	g.logger.Info("identity tokens revoked", "uuid", id, "operator", operator)
	writeJSON(w, http.StatusOK, revokeResponse{ID: id, Revoked: true})
}

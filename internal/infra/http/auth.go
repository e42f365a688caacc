package http

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const authCookie = "health_auth"

func (h *Handler) authToken() string {
	sum := sha256.Sum256([]byte(h.adminUser + ":" + h.adminPass))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) authenticated(r *http.Request) bool {
	c, err := r.Cookie(authCookie)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(h.authToken())) == 1
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(r) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{
			"status":  "login_required",
			"message": "POST credentials to /health/login",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.svc.ActiveCount(),
	})
}

func (h *Handler) HealthLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed form data")
		return
	}
	user := r.PostFormValue("username")
	pass := r.PostFormValue("password")
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.adminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.adminPass)) == 1
	if !userOK || !passOK {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    h.authToken(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_in"})
}

func (h *Handler) HealthLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

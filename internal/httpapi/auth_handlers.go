package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"clinicore.dev/internal/auth"
	"clinicore.dev/internal/obs"
)

type loginRequest struct {
	ClinicID string `json:"clinic_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func tokenPairResponse(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// writeTokens marks credential payloads uncacheable.
func writeTokens(w http.ResponseWriter, pair *auth.TokenPair) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tokenPairResponse(pair))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.Email = strings.TrimSpace(req.Email)
	if req.ClinicID == "" || req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "clinic_id, email and password are required")
		return
	}

	pair, err := a.svc.Login(r.Context(), req.ClinicID, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}
	writeTokens(w, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, _, err := a.issuer.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCredentialReused):
			// The family has just been revoked; the caller must log in
			// again. Same status as a plain invalid credential so the
			// response does not leak which case fired.
			writeError(w, r, http.StatusUnauthorized, "refresh token rejected")
		case errors.Is(err, auth.ErrInvalidCredential):
			obs.ObserveRotation("invalid")
			writeError(w, r, http.StatusUnauthorized, "refresh token rejected")
		case errors.Is(err, auth.ErrStoreUnavailable):
			obs.ObserveRotation("store_error")
			writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	writeTokens(w, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	principal, familyID, err := a.issuer.Session(token)
	if err != nil {
		// An expired access token still identifies the session; logout
		// should work during the renewal window.
		if !errors.Is(err, auth.ErrExpired) {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	if err := a.svc.Logout(r.Context(), principal, familyID); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

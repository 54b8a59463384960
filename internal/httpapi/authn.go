package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/auth"
	"clinicore.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// TokenVerifier checks an access credential offline and returns the
// principal behind it.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// RequireRoles builds the authentication/authorization middleware. An
// empty role list means any authenticated principal may pass; otherwise
// the principal's role must be in the list. Denials are audited.
func RequireRoles(verifier TokenVerifier, rec audit.Recorder, roles ...auth.Role) func(http.Handler) http.Handler {
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="clinicore"`)
				writeError(w, r, http.StatusUnauthorized, err.Error())
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="clinicore", error="invalid_token"`)
				switch {
				case errors.Is(err, auth.ErrExpired):
					writeError(w, r, http.StatusUnauthorized, "token expired")
				default:
					writeError(w, r, http.StatusUnauthorized, "invalid token")
				}
				return
			}

			if len(roles) > 0 && !roleAllowed(principal.Role, roles) {
				rec.Record(r.Context(), audit.Entry{
					ActorID:  principal.UserID,
					ClinicID: principal.ClinicID,
					Action:   audit.ActionAccessDenied,
					Severity: audit.SeverityMedium,
					Resource: r.URL.Path,
					Metadata: map[string]string{"role": string(principal.Role)},
				})
				obs.IncAccessDenied()
				writeError(w, r, http.StatusForbidden, auth.ErrRoleDenied.Error())
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleAllowed(role auth.Role, allowed []auth.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

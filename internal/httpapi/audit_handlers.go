package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/auth"
)

type auditPageResponse struct {
	Entries  []audit.Entry `json:"entries"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// auditFilter builds a clinic-scoped filter from the query string. The
// clinic always comes from the authenticated principal, never from the
// request.
func auditFilter(r *http.Request, p auth.Principal) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		ClinicID: p.ClinicID,
		ActorID:  strings.TrimSpace(q.Get("actor")),
		Action:   audit.Action(strings.TrimSpace(q.Get("action"))),
	}
	if sev := strings.TrimSpace(q.Get("severity")); sev != "" {
		f.Severity = audit.Severity(sev)
		if !f.Severity.Valid() {
			return audit.Filter{}, errBadQuery("unknown severity")
		}
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from")); err != nil {
		return audit.Filter{}, errBadQuery("from must be RFC3339")
	}
	if f.To, err = parseTimeParam(q.Get("to")); err != nil {
		return audit.Filter{}, errBadQuery("to must be RFC3339")
	}
	return f, nil
}

type errBadQuery string

func (e errBadQuery) Error() string { return string(e) }

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	a.serveAuditPage(w, r, a.engine.Query)
}

func (a *API) handleAuditSecurity(w http.ResponseWriter, r *http.Request) {
	a.serveAuditPage(w, r, a.engine.SecurityQuery)
}

func (a *API) serveAuditPage(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, f audit.Filter, page, pageSize int) ([]audit.Entry, int, error),
) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing principal")
		return
	}
	f, err := auditFilter(r, p)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), 20)

	entries, total, err := query(r.Context(), f, page, pageSize)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, auditPageResponse{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing principal")
		return
	}
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to must be RFC3339")
		return
	}

	stats, err := a.engine.Stats(r.Context(), p.ClinicID, from, to)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

package audit

import "time"

// Action identifies a security-relevant event. The set is closed: stores
// index on it and the security view filters by it.
type Action string

const (
	ActionLoginSuccess    Action = "login_success"
	ActionLoginFailed     Action = "login_failed"
	ActionTokenRefreshed  Action = "token_refreshed"
	ActionTokenReuse      Action = "token_reuse_detected"
	ActionAccessDenied    Action = "access_denied"
	ActionLogout          Action = "logout"
	ActionMFAChallenge    Action = "mfa_challenge"
	ActionMFAVerified     Action = "mfa_verified"
	ActionSessionRevoked  Action = "session_revoked"
	ActionPasswordChanged Action = "password_changed"
)

// Severity classifies an entry for triage and aggregation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all buckets in ascending order. Stats responses are
// zero-filled against this list.
var Severities = []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AnonymousActor marks entries with no authenticated principal
// (e.g. failed logins).
const AnonymousActor = "anonymous"

// Entry is an immutable audit record. Created once, never mutated.
type Entry struct {
	ID         string            `json:"id"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    string            `json:"actor_id"`
	ClinicID   string            `json:"clinic_id"`
	Action     Action            `json:"action"`
	Severity   Severity          `json:"severity"`
	Resource   string            `json:"resource,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Filter narrows query results. ClinicID is required; zero values elsewhere
// mean "any". SecurityOnly restricts to high/critical severities or the
// security-relevant actions regardless of severity.
type Filter struct {
	ClinicID     string
	ActorID      string
	Action       Action
	Severity     Severity
	From         time.Time
	To           time.Time
	SecurityOnly bool
}

// securityActions are always visible in the security view, whatever their
// recorded severity.
var securityActions = []Action{ActionLoginFailed, ActionTokenReuse, ActionAccessDenied}

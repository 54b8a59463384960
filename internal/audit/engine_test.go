package audit

import (
	"context"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) (*Engine, *MemStore) {
	t.Helper()
	store := NewMemStore()
	return New(store, Synchronous()), store
}

func record(e *Engine, clinicID string, action Action, sev Severity, at time.Time) {
	e.Record(context.Background(), Entry{
		OccurredAt: at,
		ActorID:    "u-1",
		ClinicID:   clinicID,
		Action:     action,
		Severity:   sev,
	})
}

func TestRecordFillsDefaults(t *testing.T) {
	engine, store := newTestEngine(t)
	engine.Record(context.Background(), Entry{
		ClinicID: "clinic-1",
		Action:   ActionLogout,
		Severity: Severity("shouty"),
	})

	entries, err := store.Query(context.Background(), Filter{ClinicID: "clinic-1"}, 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.OccurredAt.IsZero() {
		t.Fatalf("id and timestamp must be filled: %+v", e)
	}
	if e.ActorID != AnonymousActor {
		t.Fatalf("actor: want %q, got %q", AnonymousActor, e.ActorID)
	}
	if e.Severity != SeverityInfo {
		t.Fatalf("unknown severity must fall back to info, got %s", e.Severity)
	}
}

func TestRecordEnrichesFromContext(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithRequestMeta(ctx, RequestMeta{IP: "10.0.0.9", UserAgent: "clinic-app/2.1"})

	engine.Record(ctx, Entry{ClinicID: "clinic-1", Action: ActionLoginSuccess})

	entries, _ := store.Query(context.Background(), Filter{ClinicID: "clinic-1"}, 10, 0)
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	meta := entries[0].Metadata
	if meta["request_id"] != "req-42" || meta["ip"] != "10.0.0.9" || meta["user_agent"] != "clinic-app/2.1" {
		t.Fatalf("metadata not enriched: %v", meta)
	}
}

func TestQueryClinicScopedAndPaged(t *testing.T) {
	engine, _ := newTestEngine(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		record(engine, "clinic-1", ActionLoginSuccess, SeverityInfo, base.Add(time.Duration(i)*time.Minute))
	}
	record(engine, "clinic-2", ActionLoginSuccess, SeverityInfo, base)

	if _, _, err := engine.Query(context.Background(), Filter{}, 1, 10); err == nil {
		t.Fatal("query without clinic must fail")
	}

	entries, total, err := engine.Query(context.Background(), Filter{ClinicID: "clinic-1"}, 1, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 5 {
		t.Fatalf("total: want 5, got %d", total)
	}
	if len(entries) != 2 {
		t.Fatalf("page size: want 2, got %d", len(entries))
	}
	// Newest first.
	if !entries[0].OccurredAt.After(entries[1].OccurredAt) {
		t.Fatalf("entries not newest-first: %v then %v", entries[0].OccurredAt, entries[1].OccurredAt)
	}
}

func TestSecurityQuerySelectsByActionAndSeverity(t *testing.T) {
	engine, _ := newTestEngine(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	// Security-relevant action recorded at a mundane severity still shows up.
	record(engine, "clinic-1", ActionLoginFailed, SeverityInfo, at)
	// High severity of a mundane action shows up too.
	record(engine, "clinic-1", ActionPasswordChanged, SeverityHigh, at.Add(time.Minute))
	// Plain info noise does not.
	record(engine, "clinic-1", ActionLoginSuccess, SeverityInfo, at.Add(2*time.Minute))

	entries, total, err := engine.SecurityQuery(context.Background(), Filter{ClinicID: "clinic-1"}, 1, 10)
	if err != nil {
		t.Fatalf("security query: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("want 2 security entries, got total=%d len=%d", total, len(entries))
	}
	for _, e := range entries {
		if e.Action == ActionLoginSuccess {
			t.Fatalf("login_success leaked into security view")
		}
	}
}

func TestStatsZeroFilledAndPageIndependent(t *testing.T) {
	engine, _ := newTestEngine(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for range 3 {
		record(engine, "clinic-1", ActionLoginSuccess, SeverityInfo, at)
	}
	record(engine, "clinic-1", ActionAccessDenied, SeverityHigh, at)
	record(engine, "clinic-1", ActionTokenReuse, SeverityCritical, at)

	stats, err := engine.Stats(context.Background(), "clinic-1", at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 {
		t.Fatalf("total: want 5, got %d", stats.Total)
	}
	want := map[Severity]int{
		SeverityInfo:     3,
		SeverityLow:      0,
		SeverityMedium:   0,
		SeverityHigh:     1,
		SeverityCritical: 1,
	}
	for sev, n := range want {
		got, ok := stats.BySeverity[sev]
		if !ok {
			t.Fatalf("severity %s missing from stats", sev)
		}
		if got != n {
			t.Fatalf("severity %s: want %d, got %d", sev, n, got)
		}
	}
}

func TestAsyncEngineDrainsOnClose(t *testing.T) {
	store := NewMemStore()
	engine := New(store, WithBuffer(64))
	for range 10 {
		engine.Record(context.Background(), Entry{ClinicID: "clinic-1", Action: ActionLogout})
	}
	engine.Close()

	n, err := store.Count(context.Background(), Filter{ClinicID: "clinic-1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 10 {
		t.Fatalf("want 10 entries after drain, got %d", n)
	}
}

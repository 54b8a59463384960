package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_entries(id, occurred_at, actor_id, clinic_id, action, severity, resource, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OccurredAt, entry.ActorID, entry.ClinicID,
		string(entry.Action), string(entry.Severity), entry.Resource, meta,
	)
	return err
}

func (s *PGStore) Query(ctx context.Context, f Filter, limit, offset int) ([]Entry, error) {
	where, args := buildWhere(f)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`select id, occurred_at, actor_id, clinic_id, action, severity, resource, metadata
		 from audit_entries %s order by occurred_at desc, id desc limit $%d offset $%d`,
		where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ClinicID, &e.Action, &e.Severity, &e.Resource, &meta); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &e.Metadata)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)
	var total int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select count(*) from audit_entries %s`, where), args...,
	).Scan(&total)
	return total, err
}

func (s *PGStore) StatsBySeverity(ctx context.Context, clinicID string, from, to time.Time) (map[Severity]int, error) {
	where, args := buildWhere(Filter{ClinicID: clinicID, From: from, To: to})
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select severity, count(*) from audit_entries %s group by severity`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Severity]int)
	for rows.Next() {
		var (
			sev string
			n   int
		)
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[Severity(sev)] = n
	}
	return counts, rows.Err()
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("clinic_id = $%d", f.ClinicID)
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}
	if f.SecurityOnly {
		actions := make([]string, 0, len(securityActions))
		for _, a := range securityActions {
			args = append(args, string(a))
			actions = append(actions, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf(
			"(severity in ('high','critical') or action in (%s))",
			strings.Join(actions, ",")))
	}
	return "where " + strings.Join(conds, " and "), args
}

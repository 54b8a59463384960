package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"clinicore.dev/internal/ids"
	"clinicore.dev/internal/obs"
)

// Store persists audit entries. Append must be atomic per entry; entries are
// never updated or deleted.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, f Filter) (int, error)
	StatsBySeverity(ctx context.Context, clinicID string, from, to time.Time) (map[Severity]int, error)
}

// Recorder receives audit entries. Implementations must never fail the
// caller: recording is best-effort by contract.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// NopRecorder discards all entries.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}

var errClinicRequired = errors.New("audit: clinic id is required")

const (
	defaultBuffer   = 256
	defaultPageSize = 20
	maxPageSize     = 100
)

// Engine is the audit trail: a best-effort recorder in front of a Store plus
// the query/aggregation surface used by administrative views.
type Engine struct {
	store Store
	now   func() time.Time

	sync bool

	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures the Engine.
type Option func(*Engine)

// WithBuffer sets the async recording buffer size.
func WithBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ch = make(chan Entry, n)
		}
	}
}

// Synchronous makes Record append in the caller's goroutine. Failures are
// still swallowed. Intended for tests.
func Synchronous() Option {
	return func(e *Engine) { e.sync = true }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// New constructs an Engine and, unless Synchronous is set, starts the
// background writer.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		ch:    make(chan Entry, defaultBuffer),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.sync {
		e.wg.Add(1)
		go e.run()
	}
	return e
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case entry := <-e.ch:
			e.append(entry)
		case <-e.done:
			for {
				select {
				case entry := <-e.ch:
					e.append(entry)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) append(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.Append(ctx, &entry); err != nil {
		obs.IncAuditDropped()
		obs.Emit(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
			"level":  "warn",
			"msg":    "audit_append_failed",
			"action": string(entry.Action),
			"error":  err.Error(),
		})
	}
}

// Record appends an entry, filling ID, timestamp and defaults and enriching
// metadata from the context. It never blocks the caller and never returns an
// error: a full buffer or failed store drops the entry with a local log line.
func (e *Engine) Record(ctx context.Context, entry Entry) {
	if e == nil || e.closed.Load() {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = e.now().UTC()
	}
	if entry.ActorID == "" {
		entry.ActorID = AnonymousActor
	}
	if !entry.Severity.Valid() {
		entry.Severity = SeverityInfo
	}
	entry.Metadata = enrich(ctx, entry.Metadata)

	if e.sync {
		e.append(entry)
		return
	}
	select {
	case e.ch <- entry:
	default:
		obs.IncAuditDropped()
	}
}

func enrich(ctx context.Context, meta map[string]string) map[string]string {
	rid := requestIDFromContext(ctx)
	rm, hasMeta := requestMetaFromContext(ctx)
	if rid == "" && !hasMeta {
		return meta
	}
	out := make(map[string]string, len(meta)+3)
	for k, v := range meta {
		out[k] = v
	}
	if rid != "" {
		out["request_id"] = rid
	}
	if hasMeta {
		if rm.IP != "" {
			out["ip"] = rm.IP
		}
		if rm.UserAgent != "" {
			out["user_agent"] = rm.UserAgent
		}
	}
	return out
}

// Close drains the buffer and stops the background writer.
func (e *Engine) Close() {
	if e == nil || e.sync {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.wg.Wait()
	})
}

// Query returns one page of entries ordered newest-first plus the total
// number of entries matching the filter.
func (e *Engine) Query(ctx context.Context, f Filter, page, pageSize int) ([]Entry, int, error) {
	if f.ClinicID == "" {
		return nil, 0, errClinicRequired
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	entries, err := e.store.Query(ctx, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := e.store.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// SecurityQuery is Query restricted to high/critical severities or the
// security-relevant actions.
func (e *Engine) SecurityQuery(ctx context.Context, f Filter, page, pageSize int) ([]Entry, int, error) {
	f.SecurityOnly = true
	return e.Query(ctx, f, page, pageSize)
}

// Stats holds per-severity counts over a time range.
type Stats struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Stats aggregates entry counts per severity bucket over the full filtered
// range. Every bucket is present in the result, zero-filled.
func (e *Engine) Stats(ctx context.Context, clinicID string, from, to time.Time) (Stats, error) {
	if clinicID == "" {
		return Stats{}, errClinicRequired
	}
	counts, err := e.store.StatsBySeverity(ctx, clinicID, from, to)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{BySeverity: make(map[Severity]int, len(Severities))}
	for _, sev := range Severities {
		n := counts[sev]
		out.BySeverity[sev] = n
		out.Total += n
	}
	return out, nil
}

// Package relational implements the relational span store (§4.6, §6):
// a two-table schema (spans, annotations) behind *sqlx.DB, with a
// write-through in-memory duration cache and a self-join query builder
// for criteria search.
package relational

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"

	"github.com/tracestore/core/clockskew"
	"github.com/tracestore/core/dependency"
	"github.com/tracestore/core/merge"
	"github.com/tracestore/core/model"
	"github.com/tracestore/core/normalize"
	"github.com/tracestore/core/querymatch"
	"github.com/tracestore/core/store"
	"github.com/tracestore/core/store/relational/dbmodel"
)

// Store is the sqlx/lib-pq backed span store.
type Store struct {
	db  *sqlx.DB
	log *logrus.Logger

	// durationCache holds the best (longest) duration seen per span
	// this process has written, so a later partial report with a
	// shorter duration never regresses it. It is intentionally not
	// part of the durable, transactionally-consistent state — a
	// restart loses it and the next read simply reflects whatever
	// duration is in the database, which is acceptable per §7/§9.
	cacheMu       sync.Mutex
	durationCache map[[2]int64]int64
}

// Open wraps an already-connected database handle. driverName must
// match db's underlying driver ("postgres").
func Open(db *sql.DB, driverName string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Store{
		db:            sqlx.NewDb(db, driverName),
		log:           log,
		durationCache: make(map[[2]int64]int64),
	}
}

var _ store.Store = (*Store)(nil)

// Accept implements store.Store. Every span in the batch is normalized
// and upserted inside a single transaction; a failure rolls back the
// whole batch so no partial write is ever observable.
func (s *Store) Accept(ctx context.Context, spans []model.Span) error {
	if err := ctx.Err(); err != nil {
		return store.Cancelled("Accept", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Unavailable("Accept", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMicro()
	for _, raw := range spans {
		span := normalize.ApplyTimestampAndDuration(raw.Lowercased())
		span.Duration = s.refineDuration(span)

		if err := upsertSpan(ctx, tx, span); err != nil {
			return store.Unavailable("Accept", err)
		}
		for _, row := range dbmodel.ToAnnotationRows(span, now) {
			if err := insertAnnotation(ctx, tx, row); err != nil {
				return store.Unavailable("Accept", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return store.Unavailable("Accept", err)
	}
	s.log.WithField("accepted", len(spans)).Debug("relational span store: accepted batch")
	return nil
}

// refineDuration applies the write-through cache: a span's duration
// never shrinks across writes within this process's lifetime.
func (s *Store) refineDuration(span model.Span) *int64 {
	if span.Duration == nil {
		return nil
	}
	key := [2]int64{span.TraceID, span.ID}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if best, ok := s.durationCache[key]; ok && best > *span.Duration {
		d := best
		return &d
	}
	s.durationCache[key] = *span.Duration
	return span.Duration
}

// Per §4.6, a conflicting write updates only name/start_ts/duration —
// parent_id and debug are intentionally left alone on conflict.
// start_ts takes the earlier of the two known values (as
// merge.MergeById takes the earliest start); duration takes the longer.
const upsertSpanSQL = `
INSERT INTO spans (trace_id, id, parent_id, name, start_ts, duration, debug)
VALUES (:trace_id, :id, :parent_id, :name, :start_ts, :duration, :debug)
ON CONFLICT (trace_id, id) DO UPDATE SET
  name     = CASE WHEN EXCLUDED.name <> '' AND EXCLUDED.name <> 'unknown' THEN EXCLUDED.name ELSE spans.name END,
  start_ts = CASE
               WHEN spans.start_ts IS NULL THEN EXCLUDED.start_ts
               WHEN EXCLUDED.start_ts IS NULL THEN spans.start_ts
               ELSE LEAST(spans.start_ts, EXCLUDED.start_ts)
             END,
  duration = CASE
               WHEN spans.duration IS NULL THEN EXCLUDED.duration
               WHEN EXCLUDED.duration IS NULL THEN spans.duration
               ELSE GREATEST(spans.duration, EXCLUDED.duration)
             END
`

func upsertSpan(ctx context.Context, tx *sqlx.Tx, span model.Span) error {
	row := dbmodel.ToSpanRow(span)
	_, err := tx.NamedExecContext(ctx, upsertSpanSQL, row)
	return err
}

const insertAnnotationSQL = `
INSERT INTO annotations
  (trace_id, span_id, a_key, a_value, a_type, a_timestamp, endpoint_service_name, endpoint_ipv4, endpoint_port)
VALUES
  (:trace_id, :span_id, :a_key, :a_value, :a_type, :a_timestamp, :endpoint_service_name, :endpoint_ipv4, :endpoint_port)
ON CONFLICT DO NOTHING
`

func insertAnnotation(ctx context.Context, tx *sqlx.Tx, row dbmodel.AnnotationRow) error {
	_, err := tx.NamedExecContext(ctx, insertAnnotationSQL, row)
	return err
}

// GetTraces implements store.Store.
func (s *Store) GetTraces(ctx context.Context, req model.QueryRequest) ([][]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetTraces", err)
	}
	if err := store.ValidateQueryRequest(req); err != nil {
		return nil, err
	}
	req = req.Lowercased()

	idQuery := dbmodel.BuildTraceIDQuery(req)
	var traceIDs []int64
	if err := s.db.SelectContext(ctx, &traceIDs, s.db.Rebind(idQuery.SQL), idQuery.Args...); err != nil {
		return nil, store.Unavailable("GetTraces", err)
	}
	if len(traceIDs) == 0 {
		return nil, nil
	}

	traces, err := s.loadTraces(ctx, traceIDs)
	if err != nil {
		return nil, store.Unavailable("GetTraces", err)
	}

	var results [][]model.Span
	for _, trace := range traces {
		if querymatch.Test(req, trace) {
			results = append(results, trace)
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return model.TraceLess(results[i], results[j]) })
	return results, nil
}

// loadTraces fetches every span and annotation row for traceIDs in two
// queries, groups and merges them per trace, and clock-skew corrects
// each.
func (s *Store) loadTraces(ctx context.Context, traceIDs []int64) ([][]model.Span, error) {
	query, args, err := sqlx.In(`SELECT * FROM spans WHERE trace_id IN (?)`, traceIDs)
	if err != nil {
		return nil, err
	}
	var spanRows []dbmodel.SpanRow
	if err := s.db.SelectContext(ctx, &spanRows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	query, args, err = sqlx.In(`SELECT * FROM annotations WHERE trace_id IN (?)`, traceIDs)
	if err != nil {
		return nil, err
	}
	var annRows []dbmodel.AnnotationRow
	if err := s.db.SelectContext(ctx, &annRows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byTrace := make(map[int64][]dbmodel.SpanRow)
	for _, r := range spanRows {
		byTrace[r.TraceID] = append(byTrace[r.TraceID], r)
	}
	annByTrace := make(map[int64][]dbmodel.AnnotationRow)
	for _, r := range annRows {
		annByTrace[r.TraceID] = append(annByTrace[r.TraceID], r)
	}

	out := make([][]model.Span, 0, len(traceIDs))
	for _, id := range traceIDs {
		assembled := dbmodel.AssembleSpans(byTrace[id], annByTrace[id])
		if len(assembled) == 0 {
			continue
		}
		out = append(out, clockskew.Correct(merge.MergeById(assembled)))
	}
	return out, nil
}

// GetTrace implements store.Store.
func (s *Store) GetTrace(ctx context.Context, traceID int64) ([]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetTrace", err)
	}
	traces, err := s.loadTraces(ctx, []int64{traceID})
	if err != nil {
		return nil, store.Unavailable("GetTrace", err)
	}
	if len(traces) == 0 {
		return nil, nil
	}
	return traces[0], nil
}

// GetRawTrace implements store.Store.
func (s *Store) GetRawTrace(ctx context.Context, traceID int64) ([]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetRawTrace", err)
	}

	var spanRows []dbmodel.SpanRow
	if err := s.db.SelectContext(ctx, &spanRows, s.db.Rebind(
		`SELECT * FROM spans WHERE trace_id = ?`), traceID); err != nil {
		return nil, store.Unavailable("GetRawTrace", err)
	}
	var annRows []dbmodel.AnnotationRow
	if err := s.db.SelectContext(ctx, &annRows, s.db.Rebind(
		`SELECT * FROM annotations WHERE trace_id = ?`), traceID); err != nil {
		return nil, store.Unavailable("GetRawTrace", err)
	}
	if len(spanRows) == 0 {
		return nil, nil
	}
	return dbmodel.AssembleSpans(spanRows, annRows), nil
}

// GetServiceNames implements store.Store.
func (s *Store) GetServiceNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetServiceNames", err)
	}
	var names []string
	const q = `SELECT DISTINCT endpoint_service_name FROM annotations
	           WHERE endpoint_service_name IS NOT NULL ORDER BY endpoint_service_name ASC`
	if err := s.db.SelectContext(ctx, &names, q); err != nil {
		return nil, store.Unavailable("GetServiceNames", err)
	}
	return names, nil
}

// GetSpanNames implements store.Store.
func (s *Store) GetSpanNames(ctx context.Context, service string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetSpanNames", err)
	}
	var names []string
	const q = `SELECT DISTINCT spans.name FROM spans
	           JOIN annotations ON annotations.trace_id = spans.trace_id AND annotations.span_id = spans.id
	           WHERE LOWER(annotations.endpoint_service_name) = LOWER($1) AND spans.name <> ''
	           ORDER BY spans.name ASC`
	if err := s.db.SelectContext(ctx, &names, q, service); err != nil {
		return nil, store.Unavailable("GetSpanNames", err)
	}
	return names, nil
}

// GetDependencies implements store.Store.
func (s *Store) GetDependencies(ctx context.Context, endTsMillis int64, lookbackMillis *int64) ([]model.DependencyLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetDependencies", err)
	}

	endMicros := endTsMillis * 1000
	startMicros := int64(0)
	if lookbackMillis != nil {
		startMicros = endMicros - *lookbackMillis*1000
	}

	var traceIDs []int64
	const q = `SELECT DISTINCT trace_id FROM spans
	           WHERE parent_id IS NULL AND start_ts BETWEEN $1 AND $2`
	if err := s.db.SelectContext(ctx, &traceIDs, q, startMicros, endMicros); err != nil {
		return nil, store.Unavailable("GetDependencies", err)
	}
	if len(traceIDs) == 0 {
		return nil, nil
	}

	traces, err := s.loadTraces(ctx, traceIDs)
	if err != nil {
		return nil, store.Unavailable("GetDependencies", err)
	}
	return dependency.Link(traces), nil
}

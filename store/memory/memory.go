// Package memory implements the in-memory span store (§4.5): three
// indexes — traceId→spans, service→(traceId,timestamp) sorted
// descending, and service→spanNames — all mutated under one mutex so
// a reader never observes one index ahead of another.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tracestore/core/clockskew"
	"github.com/tracestore/core/config"
	"github.com/tracestore/core/dependency"
	"github.com/tracestore/core/merge"
	"github.com/tracestore/core/model"
	"github.com/tracestore/core/normalize"
	"github.com/tracestore/core/querymatch"
	"github.com/tracestore/core/store"
)

const minTimestamp = math.MinInt64

type traceTimestamp struct {
	traceID   int64
	timestamp int64
}

// Store is the in-memory span store. The zero value is not usable;
// construct with New.
type Store struct {
	mu sync.RWMutex

	traceIndex         map[int64][]model.Span
	serviceToTraces    map[string][]traceTimestamp
	serviceToSpanNames map[string][]string

	acceptedSpanCount uint64

	cfg config.MemoryStoreConfig
	log *logrus.Logger
}

// New returns an empty in-memory store. cfg carries construction
// options (currently none, per config.MemoryStoreConfig's doc
// comment). log may be nil, in which case a discard logger is used.
func New(cfg config.MemoryStoreConfig, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
		log.SetOutput(discardWriter{})
	}
	return &Store{
		traceIndex:         make(map[int64][]model.Span),
		serviceToTraces:    make(map[string][]traceTimestamp),
		serviceToSpanNames: make(map[string][]string),
		cfg:                cfg,
		log:                log,
	}
}

// discardWriter is a zero-size io.Writer that drops everything, used
// as the default log sink so callers never have to nil-check.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

var _ store.Store = (*Store)(nil)

// Accept implements store.Store.
func (s *Store) Accept(ctx context.Context, spans []model.Span) error {
	if err := ctx.Err(); err != nil {
		return store.Cancelled("Accept", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range spans {
		span := normalize.ApplyTimestampAndDuration(raw.Lowercased())
		s.traceIndex[span.TraceID] = append(s.traceIndex[span.TraceID], span)

		ts := minTimestamp
		if span.Timestamp != nil {
			ts = *span.Timestamp
		}
		for _, svc := range span.ServiceNames() {
			s.insertServiceToTraces(svc, span.TraceID, ts)
			if span.Name != "" {
				s.insertServiceSpanName(svc, span.Name)
			}
		}
		s.acceptedSpanCount++
	}
	s.log.WithField("accepted", len(spans)).Debug("span store: accepted batch")
	return nil
}

// insertServiceToTraces inserts (traceID, ts) into the descending,
// (timestamp DESC, traceID DESC)-ordered, deduped index for svc. Must
// be called with s.mu held.
func (s *Store) insertServiceToTraces(svc string, traceID, ts int64) {
	entries := s.serviceToTraces[svc]
	less := func(i int) bool {
		e := entries[i]
		if e.timestamp != ts {
			return e.timestamp < ts
		}
		return e.traceID <= traceID
	}
	idx := sort.Search(len(entries), less)
	if idx < len(entries) && entries[idx].traceID == traceID && entries[idx].timestamp == ts {
		return // duplicate (traceId, ts) pair: no-op
	}
	entries = append(entries, traceTimestamp{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = traceTimestamp{traceID: traceID, timestamp: ts}
	s.serviceToTraces[svc] = entries
}

// insertServiceSpanName appends name to svc's insertion-ordered set if
// not already present. Must be called with s.mu held.
func (s *Store) insertServiceSpanName(svc, name string) {
	names := s.serviceToSpanNames[svc]
	for _, n := range names {
		if n == name {
			return
		}
	}
	s.serviceToSpanNames[svc] = append(names, name)
}

// GetTrace implements store.Store.
func (s *Store) GetTrace(ctx context.Context, traceID int64) ([]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetTrace", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTraceLocked(traceID), nil
}

func (s *Store) getTraceLocked(traceID int64) []model.Span {
	raw, ok := s.traceIndex[traceID]
	if !ok {
		return nil
	}
	return clockskew.Correct(merge.MergeById(raw))
}

// GetRawTrace implements store.Store.
func (s *Store) GetRawTrace(ctx context.Context, traceID int64) ([]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetRawTrace", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.traceIndex[traceID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Span, len(raw))
	copy(out, raw)
	return out, nil
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.serviceToTraces[req.ServiceName]
	seen := make(map[int64]struct{}, len(entries))
	var results [][]model.Span
	for _, e := range entries {
		if _, ok := seen[e.traceID]; ok {
			continue
		}
		seen[e.traceID] = struct{}{}

		trace := s.getTraceLocked(e.traceID)
		if trace == nil {
			continue
		}
		if !querymatch.Test(req, trace) {
			continue
		}
		results = append(results, trace)
		if len(results) >= req.Limit {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return model.TraceLess(results[i], results[j]) })
	return results, nil
}

// GetServiceNames implements store.Store.
func (s *Store) GetServiceNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetServiceNames", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.serviceToTraces))
	for svc := range s.serviceToTraces {
		names = append(names, svc)
	}
	sort.Strings(names)
	return names, nil
}

// GetSpanNames implements store.Store.
func (s *Store) GetSpanNames(ctx context.Context, service string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetSpanNames", err)
	}
	service = strings.ToLower(service)

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := append([]string(nil), s.serviceToSpanNames[service]...)
	sort.Strings(names)
	return names, nil
}

// GetDependencies implements store.Store.
func (s *Store) GetDependencies(ctx context.Context, endTsMillis int64, lookbackMillis *int64) ([]model.DependencyLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Cancelled("GetDependencies", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	endMicros := endTsMillis * 1000
	startMicros := int64(0)
	if lookbackMillis != nil {
		startMicros = endMicros - *lookbackMillis*1000
	}

	var traces [][]model.Span
	for traceID := range s.traceIndex {
		trace := s.getTraceLocked(traceID)
		root, ok := model.Root(trace)
		if !ok || root.Timestamp == nil {
			continue
		}
		if *root.Timestamp < startMicros || *root.Timestamp > endMicros {
			continue
		}
		traces = append(traces, trace)
	}

	return dependency.Link(traces), nil
}



// AcceptedSpanCount returns the number of spans accepted so far,
// regardless of merge/dedup. Useful for tests and diagnostics.
func (s *Store) AcceptedSpanCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acceptedSpanCount
}

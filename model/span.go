package model

import "strings"

// Span is one unit of work within a trace, identified by (TraceID,
// ID). Values handed out by a store are immutable snapshots; callers
// must not mutate them in place.
type Span struct {
	TraceID  int64
	ID       int64
	ParentID *int64

	Name string

	Timestamp *int64 // microseconds since epoch
	Duration  *int64 // microseconds

	Debug *bool

	// Annotations is sorted by (Timestamp ASC, Value ASC) after merge;
	// insertion order is otherwise preserved.
	Annotations []Annotation
	// BinaryAnnotations is sorted by Key ASC after merge.
	BinaryAnnotations []BinaryAnnotation
}

// Unnamed reports whether Name should be treated as unset for merge
// precedence: empty or the literal "unknown".
func (s Span) Unnamed() bool {
	return s.Name == "" || s.Name == "unknown"
}

// Lowercased returns a copy of s with every endpoint's ServiceName
// ASCII-lowercased.
func (s Span) Lowercased() Span {
	out := s
	if len(s.Annotations) > 0 {
		out.Annotations = make([]Annotation, len(s.Annotations))
		for i, a := range s.Annotations {
			out.Annotations[i] = a
			if a.Endpoint != nil {
				ep := a.Endpoint.Lowercase()
				out.Annotations[i].Endpoint = &ep
			}
		}
	}
	if len(s.BinaryAnnotations) > 0 {
		out.BinaryAnnotations = make([]BinaryAnnotation, len(s.BinaryAnnotations))
		for i, b := range s.BinaryAnnotations {
			out.BinaryAnnotations[i] = b
			if b.Endpoint != nil {
				ep := b.Endpoint.Lowercase()
				out.BinaryAnnotations[i].Endpoint = &ep
			}
		}
	}
	return out
}

// ServiceNames returns the set of distinct, lowercased endpoint
// service names referenced by this span's annotations and binary
// annotations.
func (s Span) ServiceNames() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ep *Endpoint) {
		if ep == nil || ep.ServiceName == "" {
			return
		}
		name := strings.ToLower(ep.ServiceName)
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, a := range s.Annotations {
		add(a.Endpoint)
	}
	for _, b := range s.BinaryAnnotations {
		add(b.Endpoint)
	}
	return out
}

// AnnotationEndpoint returns the endpoint of the first annotation
// whose value matches one of the given core values, in the order the
// values are supplied. Used by the clock-skew corrector to find the
// host that recorded sr/cs.
func (s Span) AnnotationEndpoint(values ...string) *Endpoint {
	for _, v := range values {
		for _, a := range s.Annotations {
			if a.Value == v && a.Endpoint != nil {
				return a.Endpoint
			}
		}
	}
	return nil
}

// AnnotationTimestamp returns the timestamp of the first annotation
// with the given value, and whether one was found.
func (s Span) AnnotationTimestamp(value string) (int64, bool) {
	for _, a := range s.Annotations {
		if a.Value == value {
			return a.Timestamp, true
		}
	}
	return 0, false
}

// HasError reports whether the span carries an "error" marker, either
// as an annotation value or a binary annotation key.
func (s Span) HasError() bool {
	for _, a := range s.Annotations {
		if a.Value == "error" {
			return true
		}
	}
	for _, b := range s.BinaryAnnotations {
		if b.Key == "error" {
			return true
		}
	}
	return false
}

// spanLess orders two spans by (Timestamp ASC, ID ASC), treating a
// nil Timestamp as sorting first. This is the merge-output order from
// §4.2 and the general within-trace order from §3.
func spanLess(a, b Span) bool {
	if a.Timestamp == nil && b.Timestamp == nil {
		return a.ID < b.ID
	}
	if a.Timestamp == nil {
		return true
	}
	if b.Timestamp == nil {
		return false
	}
	if *a.Timestamp != *b.Timestamp {
		return *a.Timestamp < *b.Timestamp
	}
	return a.ID < b.ID
}

// SortSpansAsc sorts spans in place by (Timestamp ASC, ID ASC) with
// nil timestamps first.
func SortSpansAsc(spans []Span) {
	sortSpans(spans, spanLess)
}

// Root returns the span a sorted (ascending) trace's spans treat as
// its root for cross-trace comparison: the first element.
func Root(sortedTrace []Span) (Span, bool) {
	if len(sortedTrace) == 0 {
		return Span{}, false
	}
	return sortedTrace[0], true
}

// TraceLess orders two traces by their root span's (Timestamp DESC, ID
// DESC) — i.e. the more recent/higher-id trace sorts first. Both
// inputs must already be sorted ascending by SortSpansAsc.
func TraceLess(a, b []Span) bool {
	ra, aok := Root(a)
	rb, bok := Root(b)
	if !aok {
		return false
	}
	if !bok {
		return true
	}
	switch {
	case ra.Timestamp == nil && rb.Timestamp == nil:
		return ra.ID > rb.ID
	case ra.Timestamp == nil:
		return false
	case rb.Timestamp == nil:
		return true
	case *ra.Timestamp != *rb.Timestamp:
		return *ra.Timestamp > *rb.Timestamp
	default:
		return ra.ID > rb.ID
	}
}

// Package merge implements MergeById (§4.2): combining partial copies
// of the same (traceId, id) span, reported by different collectors,
// into a single span with deterministic field precedence.
package merge

import (
	"strconv"

	"github.com/tracestore/core/model"
)

type key struct {
	traceID int64
	id      int64
}

// MergeById combines spans sharing a (TraceID, ID) into one span each,
// and returns the result ordered by (Timestamp ASC, ID ASC) with nil
// timestamps first.
func MergeById(spans []model.Span) []model.Span {
	if len(spans) == 0 {
		return nil
	}

	order := make([]key, 0, len(spans))
	groups := make(map[key][]model.Span, len(spans))
	for _, s := range spans {
		k := key{s.TraceID, s.ID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	out := make([]model.Span, 0, len(order))
	for _, k := range order {
		out = append(out, mergeOne(groups[k]))
	}
	model.SortSpansAsc(out)
	return out
}

func mergeOne(copies []model.Span) model.Span {
	merged := copies[0]
	merged.Name = firstNamed(copies)
	merged.Timestamp, merged.Duration = combineTimestampDuration(copies)
	merged.Debug = orDebug(copies)
	merged.ParentID = firstParentID(copies)

	var anns []model.Annotation
	for _, c := range copies {
		anns = append(anns, c.Annotations...)
	}
	merged.Annotations = dedupeAnnotations(anns)

	var bas []model.BinaryAnnotation
	for _, c := range copies {
		bas = append(bas, c.BinaryAnnotations...)
	}
	merged.BinaryAnnotations = dedupeBinaryAnnotations(bas)

	return merged
}

func firstNamed(copies []model.Span) string {
	for _, c := range copies {
		if !c.Unnamed() {
			return c.Name
		}
	}
	return copies[0].Name
}

// combineTimestampDuration derives the merged span's Timestamp and
// Duration from each copy's own (Timestamp, Timestamp+Duration) span,
// per §4.2/§8 scenario 2: the merged Timestamp is the minimum of every
// copy's start, and the merged Duration spans from that minimum start
// to the maximum of every copy's own end (falling back to its own
// Timestamp when its Duration is unset). Taking an independent
// max(Duration) instead would undercount whenever the longest-lived
// copy isn't the one with the latest-known duration.
func combineTimestampDuration(copies []model.Span) (timestamp, duration *int64) {
	var start, end *int64
	for _, c := range copies {
		if c.Timestamp == nil {
			continue
		}
		ts := *c.Timestamp
		if start == nil || ts < *start {
			v := ts
			start = &v
		}
		e := ts
		if c.Duration != nil {
			e = ts + *c.Duration
		}
		if end == nil || e > *end {
			v := e
			end = &v
		}
	}
	if start == nil {
		return nil, nil
	}
	if *end == *start {
		return start, nil
	}
	d := *end - *start
	return start, &d
}

func orDebug(copies []model.Span) *bool {
	var result *bool
	for _, c := range copies {
		if c.Debug == nil {
			continue
		}
		if result == nil {
			v := *c.Debug
			result = &v
			continue
		}
		*result = *result || *c.Debug
	}
	return result
}

func firstParentID(copies []model.Span) *int64 {
	for _, c := range copies {
		if c.ParentID != nil {
			return c.ParentID
		}
	}
	return nil
}

type annotationKey struct {
	timestamp int64
	value     string
	endpoint  string
}

func endpointKey(ep *model.Endpoint) string {
	if ep == nil {
		return ""
	}
	port := int16(-1)
	if ep.Port != nil {
		port = *ep.Port
	}
	return ep.ServiceName + "\x00" + strconv.Itoa(int(ep.IPv4)) + "\x00" + strconv.Itoa(int(port))
}

func dedupeAnnotations(anns []model.Annotation) []model.Annotation {
	seen := make(map[annotationKey]struct{}, len(anns))
	out := make([]model.Annotation, 0, len(anns))
	for _, a := range anns {
		k := annotationKey{a.Timestamp, a.Value, endpointKey(a.Endpoint)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	model.SortAnnotationsAsc(out)
	return out
}

type binaryAnnotationKey struct {
	key      string
	value    string
	typ      model.AnnotationType
	endpoint string
}

func dedupeBinaryAnnotations(bas []model.BinaryAnnotation) []model.BinaryAnnotation {
	seen := make(map[binaryAnnotationKey]struct{}, len(bas))
	out := make([]model.BinaryAnnotation, 0, len(bas))
	for _, b := range bas {
		k := binaryAnnotationKey{b.Key, string(b.Value), b.Type, endpointKey(b.Endpoint)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	model.SortBinaryAnnotationsAsc(out)
	return out
}

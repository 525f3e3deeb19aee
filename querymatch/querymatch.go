// Package querymatch implements the QueryMatcher ("test") from §4.4:
// evaluating whether a reconstructed trace satisfies every criterion
// of a QueryRequest. Matching is total — a predicate over absent data
// evaluates to false rather than erroring.
package querymatch

import "github.com/tracestore/core/model"

// Test reports whether trace (a merged, clock-skew-corrected list of
// spans sorted ascending by (Timestamp, ID)) satisfies req. Criteria
// may be satisfied by different spans within the trace.
func Test(req model.QueryRequest, trace []model.Span) bool {
	if len(trace) == 0 {
		return false
	}
	req = req.Lowercased()

	root, ok := model.Root(trace)
	if !ok || root.Timestamp == nil {
		return false
	}
	start, end := req.TimeWindowMicros()
	if *root.Timestamp < start || *root.Timestamp > end {
		return false
	}

	remainingAnnotations := make(map[string]struct{}, len(req.Annotations))
	for _, a := range req.Annotations {
		remainingAnnotations[a] = struct{}{}
	}
	remainingBinary := make(map[string]string, len(req.BinaryAnnotations))
	for k, v := range req.BinaryAnnotations {
		remainingBinary[k] = v
	}

	serviceMatched := false
	spanNameMatched := req.SpanName == nil
	durationMatched := req.MinDuration == nil && req.MaxDuration == nil

	for _, span := range trace {
		names := span.ServiceNames()
		hasService := false
		for _, n := range names {
			if n == req.ServiceName {
				hasService = true
				serviceMatched = true
				break
			}
		}

		if req.SpanName != nil && span.Name == *req.SpanName {
			spanNameMatched = true
		}

		for _, a := range span.Annotations {
			if _, want := remainingAnnotations[a.Value]; want {
				delete(remainingAnnotations, a.Value)
			}
		}
		for _, b := range span.BinaryAnnotations {
			if b.Type != model.TypeString {
				continue
			}
			if want, ok := remainingBinary[b.Key]; ok && want == b.StringValue() {
				delete(remainingBinary, b.Key)
			}
		}

		if !durationMatched && hasService && span.Duration != nil {
			if durationInRange(*span.Duration, req.MinDuration, req.MaxDuration) {
				durationMatched = true
			}
		}
	}

	return serviceMatched &&
		spanNameMatched &&
		len(remainingAnnotations) == 0 &&
		len(remainingBinary) == 0 &&
		durationMatched
}

func durationInRange(d int64, min, max *int64) bool {
	if min != nil && d < *min {
		return false
	}
	if max != nil && d > *max {
		return false
	}
	return true
}

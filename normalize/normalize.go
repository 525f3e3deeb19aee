// Package normalize implements applyTimestampAndDuration (§4.1): it
// derives a Span's timestamp and duration from its annotations when
// they are not already set. Normalization never fails; spans it
// cannot infer anything for are passed through unchanged.
package normalize

import "github.com/tracestore/core/model"

// ApplyTimestampAndDuration returns a Span with Timestamp/Duration
// filled in when they can be inferred from the span's annotations.
func ApplyTimestampAndDuration(s model.Span) model.Span {
	if s.Timestamp != nil && s.Duration != nil {
		return s
	}
	if len(s.Annotations) == 0 {
		return s
	}

	first := s.Annotations[0].Timestamp
	last := s.Annotations[0].Timestamp
	for _, a := range s.Annotations[1:] {
		if a.Timestamp < first {
			first = a.Timestamp
		}
		if a.Timestamp > last {
			last = a.Timestamp
		}
	}

	if s.Timestamp == nil {
		ts := first
		s.Timestamp = &ts
	}
	if s.Duration == nil && last > first {
		d := last - first
		s.Duration = &d
	}
	return s
}

// Package clockskew implements ClockSkewCorrector (§4.3): a heuristic
// correction that shifts a per-host subtree of a trace so that child
// spans fall within their parent's time window. It does not claim
// exact physical-clock alignment, only a reduction of visible
// timestamp inversions between a client and the server it called.
package clockskew

import "github.com/tracestore/core/model"

// thresholdMicros is the conservative "is this skew worth acting on"
// bound. Any nonzero computed skew is, by construction, derived from
// a cs/sr pair that implies some inversion risk, so the threshold only
// exists to avoid amplifying sub-microsecond rounding noise.
const thresholdMicros = 1

// Correct returns a copy of trace (already merged) with per-host
// subtrees shifted so that, wherever both are known, a child's
// timestamp is no earlier than its parent's.
func Correct(trace []model.Span) []model.Span {
	if len(trace) == 0 {
		return trace
	}

	byID := make(map[int64]model.Span, len(trace))
	children := make(map[int64][]int64)
	var roots []int64

	for _, s := range trace {
		byID[s.ID] = s
	}
	for _, s := range trace {
		if s.ParentID == nil || *s.ParentID == s.ID {
			roots = append(roots, s.ID)
			continue
		}
		if _, ok := byID[*s.ParentID]; !ok {
			roots = append(roots, s.ID)
			continue
		}
		children[*s.ParentID] = append(children[*s.ParentID], s.ID)
	}

	out := make(map[int64]model.Span, len(trace))
	visited := make(map[int64]bool, len(trace))
	for _, rootID := range roots {
		walk(rootID, nil, nil, 0, byID, children, out, visited)
	}

	result := make([]model.Span, 0, len(trace))
	for _, s := range trace {
		if corrected, ok := out[s.ID]; ok {
			result = append(result, corrected)
		} else {
			result = append(result, s)
		}
	}
	model.SortSpansAsc(result)
	return result
}

func walk(
	id int64,
	parent *model.Span,
	parentHost *model.Endpoint,
	inheritedSkew int64,
	byID map[int64]model.Span,
	children map[int64][]int64,
	out map[int64]model.Span,
	visited map[int64]bool,
) {
	if visited[id] {
		return
	}
	visited[id] = true

	span := byID[id]
	host := span.AnnotationEndpoint(model.CoreServerReceive, model.CoreClientSend)

	skew := inheritedSkew
	if parent != nil {
		sameHost := host != nil && parentHost != nil && host.ServiceName == parentHost.ServiceName
		if !sameHost {
			if computed, ok := computeSkew(*parent, span); ok && shouldApply(*parent, span, computed) {
				skew = computed
			} else {
				skew = 0
			}
		}
	}

	shifted := shift(span, skew)
	out[id] = shifted

	for _, childID := range children[id] {
		walk(childID, &shifted, host, skew, byID, children, out, visited)
	}
}

// computeSkew implements the §4.3 formula:
//
//	skew = parent.cs + (parent.duration - child.duration)/2 - child.sr   (child.duration known)
//	skew = parent.cs - child.sr                                          (otherwise)
func computeSkew(parent, child model.Span) (int64, bool) {
	cs, ok := parent.AnnotationTimestamp(model.CoreClientSend)
	if !ok {
		return 0, false
	}
	sr, ok := child.AnnotationTimestamp(model.CoreServerReceive)
	if !ok {
		return 0, false
	}
	if parent.Duration != nil && child.Duration != nil {
		return cs + (*parent.Duration-*child.Duration)/2 - sr, true
	}
	return cs - sr, true
}

func shouldApply(parent, child model.Span, skew int64) bool {
	if withinParentWindow(parent, child) {
		return false
	}
	if skew < 0 {
		return true
	}
	return skew >= thresholdMicros
}

func withinParentWindow(parent, child model.Span) bool {
	if parent.Timestamp == nil || child.Timestamp == nil {
		return false
	}
	start := *parent.Timestamp
	if *child.Timestamp < start {
		return false
	}
	if parent.Duration == nil {
		return true
	}
	end := start + *parent.Duration
	return *child.Timestamp <= end
}

func shift(s model.Span, skew int64) model.Span {
	if skew == 0 {
		return s
	}
	out := s
	if s.Timestamp != nil {
		ts := *s.Timestamp + skew
		out.Timestamp = &ts
	}
	if len(s.Annotations) > 0 {
		out.Annotations = make([]model.Annotation, len(s.Annotations))
		for i, a := range s.Annotations {
			a.Timestamp += skew
			out.Annotations[i] = a
		}
	}
	return out
}

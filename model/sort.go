package model

import "sort"

func sortSpans(spans []Span, less func(a, b Span) bool) {
	sort.SliceStable(spans, func(i, j int) bool { return less(spans[i], spans[j]) })
}

// SortAnnotationsAsc sorts annotations by (Timestamp ASC, Value ASC),
// stably, per §3's per-span ordering rule.
func SortAnnotationsAsc(anns []Annotation) {
	sort.SliceStable(anns, func(i, j int) bool {
		if anns[i].Timestamp != anns[j].Timestamp {
			return anns[i].Timestamp < anns[j].Timestamp
		}
		return anns[i].Value < anns[j].Value
	})
}

// SortBinaryAnnotationsAsc sorts binary annotations by Key ASC,
// stably.
func SortBinaryAnnotationsAsc(bas []BinaryAnnotation) {
	sort.SliceStable(bas, func(i, j int) bool { return bas[i].Key < bas[j].Key })
}

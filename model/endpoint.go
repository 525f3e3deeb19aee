// Package model defines the record types the span store operates on:
// Span, Annotation, BinaryAnnotation, Endpoint, QueryRequest and
// DependencyLink, along with the comparators the rest of the store
// relies on for deterministic ordering.
package model

import "strings"

// Endpoint identifies the host and service that recorded an
// Annotation or BinaryAnnotation.
type Endpoint struct {
	ServiceName string
	IPv4        int32
	Port        *int16
}

// Lowercase returns an Endpoint whose ServiceName has been
// ASCII-lowercased, per the write/query-time normalization rule.
func (e Endpoint) Lowercase() Endpoint {
	e.ServiceName = strings.ToLower(e.ServiceName)
	return e
}

// Package dbmodel defines the row shapes of the relational schema
// from §6 and the conversions between them and model.Span.
package dbmodel

import "github.com/tracestore/core/model"

// RegularAnnotationType is the a_type sentinel marking a row in the
// annotations table as a plain (non-binary) Annotation rather than a
// BinaryAnnotation.
const RegularAnnotationType = -1

// SpanRow is one row of the spans table.
type SpanRow struct {
	TraceID  int64  `db:"trace_id"`
	ID       int64  `db:"id"`
	ParentID *int64 `db:"parent_id"`
	Name     string `db:"name"`
	StartTs  *int64 `db:"start_ts"`
	Duration *int64 `db:"duration"`
	Debug    *bool  `db:"debug"`
}

// AnnotationRow is one row of the annotations table. aType is -1 for a
// regular Annotation and the BinaryAnnotation's type code (>= 0)
// otherwise.
type AnnotationRow struct {
	TraceID         int64   `db:"trace_id"`
	SpanID          int64   `db:"span_id"`
	AKey            string  `db:"a_key"`
	AValue          []byte  `db:"a_value"`
	AType           int32   `db:"a_type"`
	ATimestamp      int64   `db:"a_timestamp"`
	EndpointService *string `db:"endpoint_service_name"`
	EndpointIPv4    *int32  `db:"endpoint_ipv4"`
	EndpointPort    *int16  `db:"endpoint_port"`
}

func (r AnnotationRow) endpoint() *model.Endpoint {
	if r.EndpointService == nil || *r.EndpointService == "" {
		return nil
	}
	ep := &model.Endpoint{ServiceName: *r.EndpointService}
	if r.EndpointIPv4 != nil {
		ep.IPv4 = *r.EndpointIPv4
	}
	ep.Port = r.EndpointPort
	return ep
}

func endpointColumns(ep *model.Endpoint) (service *string, ipv4 *int32, port *int16) {
	if ep == nil || ep.ServiceName == "" {
		return nil, nil, nil
	}
	name := ep.ServiceName
	ipv4v := ep.IPv4
	return &name, &ipv4v, ep.Port
}

// ToSpanRow projects a Span's scalar fields into a SpanRow.
func ToSpanRow(s model.Span) SpanRow {
	return SpanRow{
		TraceID:  s.TraceID,
		ID:       s.ID,
		ParentID: s.ParentID,
		Name:     s.Name,
		StartTs:  s.Timestamp,
		Duration: s.Duration,
		Debug:    s.Debug,
	}
}

// ToAnnotationRows projects a Span's annotations and binary
// annotations into annotation rows. now is the fallback timestamp
// (µs) used when a binary annotation has no natural timestamp of its
// own, per §4.6.
func ToAnnotationRows(s model.Span, now int64) []AnnotationRow {
	rows := make([]AnnotationRow, 0, len(s.Annotations)+len(s.BinaryAnnotations))
	for _, a := range s.Annotations {
		service, ipv4, port := endpointColumns(a.Endpoint)
		rows = append(rows, AnnotationRow{
			TraceID:         s.TraceID,
			SpanID:          s.ID,
			AKey:            a.Value,
			AType:           RegularAnnotationType,
			ATimestamp:      a.Timestamp,
			EndpointService: service,
			EndpointIPv4:    ipv4,
			EndpointPort:    port,
		})
	}

	ts := now
	if s.Timestamp != nil && *s.Timestamp > ts {
		ts = *s.Timestamp
	}
	for _, b := range s.BinaryAnnotations {
		service, ipv4, port := endpointColumns(b.Endpoint)
		rows = append(rows, AnnotationRow{
			TraceID:         s.TraceID,
			SpanID:          s.ID,
			AKey:            b.Key,
			AValue:          b.Value,
			AType:           int32(b.Type),
			ATimestamp:      ts,
			EndpointService: service,
			EndpointIPv4:    ipv4,
			EndpointPort:    port,
		})
	}
	return rows
}

// AssembleSpans groups span rows with their annotation rows (matched
// by (trace_id, span_id)) back into model.Span values. Output order
// is unspecified; callers sort/merge downstream.
func AssembleSpans(spanRows []SpanRow, annotationRows []AnnotationRow) []model.Span {
	byKey := make(map[[2]int64][]AnnotationRow, len(annotationRows))
	for _, a := range annotationRows {
		key := [2]int64{a.TraceID, a.SpanID}
		byKey[key] = append(byKey[key], a)
	}

	out := make([]model.Span, 0, len(spanRows))
	for _, row := range spanRows {
		span := model.Span{
			TraceID:  row.TraceID,
			ID:       row.ID,
			ParentID: row.ParentID,
			Name:     row.Name,
			Timestamp: row.StartTs,
			Duration:  row.Duration,
			Debug:     row.Debug,
		}
		for _, a := range byKey[[2]int64{row.TraceID, row.ID}] {
			if a.AType == RegularAnnotationType {
				span.Annotations = append(span.Annotations, model.Annotation{
					Timestamp: a.ATimestamp,
					Value:     a.AKey,
					Endpoint:  a.endpoint(),
				})
				continue
			}
			span.BinaryAnnotations = append(span.BinaryAnnotations, model.BinaryAnnotation{
				Key:      a.AKey,
				Value:    a.AValue,
				Type:     model.AnnotationType(a.AType),
				Endpoint: a.endpoint(),
			})
		}
		model.SortAnnotationsAsc(span.Annotations)
		model.SortBinaryAnnotationsAsc(span.BinaryAnnotations)
		out = append(out, span)
	}
	return out
}

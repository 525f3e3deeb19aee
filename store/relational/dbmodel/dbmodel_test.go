package dbmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracestore/core/model"
)

func ptrInt64(v int64) *int64 { return &v }

func TestToAnnotationRowsStampsBinaryAnnotationTimestamp(t *testing.T) {
	span := model.Span{
		TraceID:   1,
		ID:        1,
		Timestamp: ptrInt64(1000),
		BinaryAnnotations: []model.BinaryAnnotation{
			{Key: "http.status_code", Value: []byte("200")},
		},
	}

	rows := ToAnnotationRows(span, 500)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000), rows[0].ATimestamp)
}

func TestToAnnotationRowsFallsBackToNowWhenNoSpanTimestamp(t *testing.T) {
	span := model.Span{
		TraceID: 1, ID: 1,
		BinaryAnnotations: []model.BinaryAnnotation{{Key: "k", Value: []byte("v")}},
	}
	rows := ToAnnotationRows(span, 9000)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9000), rows[0].ATimestamp)
}

func TestAssembleSpansRoundTrips(t *testing.T) {
	ep := &model.Endpoint{ServiceName: "app"}
	original := model.Span{
		TraceID: 1, ID: 2, ParentID: ptrInt64(1), Name: "get",
		Timestamp: ptrInt64(100), Duration: ptrInt64(50),
		Annotations:       []model.Annotation{{Timestamp: 100, Value: model.CoreClientSend, Endpoint: ep}},
		BinaryAnnotations: []model.BinaryAnnotation{{Key: "http.status_code", Value: []byte("200"), Type: model.TypeString, Endpoint: ep}},
	}

	spanRow := ToSpanRow(original)
	annRows := ToAnnotationRows(original, 0)
	reassembled := AssembleSpans([]SpanRow{spanRow}, annRows)

	require.Len(t, reassembled, 1)
	got := reassembled[0]
	assert.Equal(t, original.TraceID, got.TraceID)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Name, got.Name)
	require.Len(t, got.Annotations, 1)
	assert.Equal(t, model.CoreClientSend, got.Annotations[0].Value)
	require.Len(t, got.BinaryAnnotations, 1)
	assert.Equal(t, "http.status_code", got.BinaryAnnotations[0].Key)
	require.NotNil(t, got.BinaryAnnotations[0].Endpoint)
	assert.Equal(t, "app", got.BinaryAnnotations[0].Endpoint.ServiceName)
}

func TestAssembleSpansGroupsByTraceAndSpanID(t *testing.T) {
	rows := []SpanRow{{TraceID: 1, ID: 1}, {TraceID: 2, ID: 1}}
	anns := []AnnotationRow{
		{TraceID: 1, SpanID: 1, AKey: "x", AType: RegularAnnotationType},
		{TraceID: 2, SpanID: 1, AKey: "y", AType: RegularAnnotationType},
	}
	out := AssembleSpans(rows, anns)
	require.Len(t, out, 2)
	for _, s := range out {
		require.Len(t, s.Annotations, 1)
	}
}

package querymatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tracestore/core/model"
)

func ptr(v int64) *int64 { return &v }

func webSpan(ts int64, name string, bas ...model.BinaryAnnotation) model.Span {
	ep := &model.Endpoint{ServiceName: "web"}
	return model.Span{
		TraceID:           1,
		ID:                1,
		Name:              name,
		Timestamp:         &ts,
		Duration:          ptr(100),
		Annotations:       []model.Annotation{{Timestamp: ts, Value: "sr", Endpoint: ep}},
		BinaryAnnotations: bas,
	}
}

func TestMatchesOnServiceAndTimeWindow(t *testing.T) {
	trace := []model.Span{webSpan(5_000_000, "get")}
	req := model.QueryRequest{ServiceName: "web", EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.True(t, Test(req, trace))
}

func TestFailsOutsideTimeWindow(t *testing.T) {
	trace := []model.Span{webSpan(50_000_000, "get")}
	req := model.QueryRequest{ServiceName: "web", EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.False(t, Test(req, trace))
}

func TestFailsOnNullRootTimestamp(t *testing.T) {
	trace := []model.Span{{TraceID: 1, ID: 1}}
	req := model.QueryRequest{ServiceName: "web", EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.False(t, Test(req, trace))
}

func TestServiceNameIsCaseInsensitive(t *testing.T) {
	trace := []model.Span{webSpan(5_000_000, "get")}
	req := model.QueryRequest{ServiceName: "WEB", EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.True(t, Test(req, trace))
}

func TestBinaryAnnotationMustBeStringTyped(t *testing.T) {
	trace := []model.Span{webSpan(5_000_000, "get", model.BinaryAnnotation{
		Key: "http.path", Value: []byte("/x"), Type: model.TypeString,
	})}
	req := model.QueryRequest{
		ServiceName:       "web",
		BinaryAnnotations: map[string]string{"http.path": "/x"},
		EndTs:             10_000, Lookback: 10_000, Limit: 10,
	}
	assert.True(t, Test(req, trace))

	trace2 := []model.Span{webSpan(5_000_000, "get", model.BinaryAnnotation{
		Key: "retry_count", Value: []byte{1}, Type: model.TypeI32,
	})}
	req2 := model.QueryRequest{
		ServiceName:       "web",
		BinaryAnnotations: map[string]string{"retry_count": "1"},
		EndTs:             10_000, Lookback: 10_000, Limit: 10,
	}
	assert.False(t, Test(req2, trace2))
}

func TestDurationRangeRequiresMatchingService(t *testing.T) {
	trace := []model.Span{webSpan(5_000_000, "get")}
	req := model.QueryRequest{ServiceName: "web", MinDuration: ptr(50), EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.True(t, Test(req, trace))

	req2 := model.QueryRequest{ServiceName: "web", MinDuration: ptr(1000), EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.False(t, Test(req2, trace))

	// a long span of another service does not satisfy the web query
	db := &model.Endpoint{ServiceName: "db"}
	dbSpan := model.Span{TraceID: 1, ID: 2, Timestamp: ptr(5_000_001), Duration: ptr(5000),
		Annotations: []model.Annotation{{Timestamp: 5_000_001, Value: "sr", Endpoint: db}}}
	assert.False(t, Test(req2, append(trace, dbSpan)))
}

func TestAnnotationsSatisfiedAcrossDifferentSpans(t *testing.T) {
	ep := &model.Endpoint{ServiceName: "web"}
	s1 := model.Span{TraceID: 1, ID: 1, Timestamp: ptr(5_000_000), Annotations: []model.Annotation{{Timestamp: 1, Value: "cs", Endpoint: ep}}}
	s2 := model.Span{TraceID: 1, ID: 2, Timestamp: ptr(5_000_001), Annotations: []model.Annotation{{Timestamp: 2, Value: "sr", Endpoint: ep}}}
	trace := []model.Span{s1, s2}
	req := model.QueryRequest{ServiceName: "web", Annotations: []string{"cs", "sr"}, EndTs: 10_000, Lookback: 10_000, Limit: 10}
	assert.True(t, Test(req, trace))
}

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tracestore/core/model"
)

func ptr(v int64) *int64 { return &v }

func TestNoAnnotationsPassesThrough(t *testing.T) {
	s := model.Span{ID: 1}
	got := ApplyTimestampAndDuration(s)
	assert.Nil(t, got.Timestamp)
	assert.Nil(t, got.Duration)
}

func TestAlreadySetPassesThrough(t *testing.T) {
	s := model.Span{
		Timestamp:   ptr(10),
		Duration:    ptr(5),
		Annotations: []model.Annotation{{Timestamp: 1000}},
	}
	got := ApplyTimestampAndDuration(s)
	assert.Equal(t, int64(10), *got.Timestamp)
	assert.Equal(t, int64(5), *got.Duration)
}

func TestDerivesTimestampAndDuration(t *testing.T) {
	s := model.Span{
		Annotations: []model.Annotation{
			{Timestamp: 1500, Value: "ss"},
			{Timestamp: 1000, Value: "sr"},
		},
	}
	got := ApplyTimestampAndDuration(s)
	assert.Equal(t, int64(1000), *got.Timestamp)
	assert.Equal(t, int64(500), *got.Duration)
}

func TestSingleAnnotationLeavesDurationUnset(t *testing.T) {
	s := model.Span{Annotations: []model.Annotation{{Timestamp: 1000, Value: "sr"}}}
	got := ApplyTimestampAndDuration(s)
	assert.Equal(t, int64(1000), *got.Timestamp)
	assert.Nil(t, got.Duration)
}

func TestEqualTimestampsLeaveDurationUnset(t *testing.T) {
	s := model.Span{Annotations: []model.Annotation{{Timestamp: 1000}, {Timestamp: 1000}}}
	got := ApplyTimestampAndDuration(s)
	assert.Nil(t, got.Duration)
}

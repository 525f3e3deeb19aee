package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracestore/core/model"
)

func ptr(v int64) *int64 { return &v }

func TestLinkBuildsChainOfTwoEdges(t *testing.T) {
	app1 := &model.Endpoint{ServiceName: "app1"}
	app2 := &model.Endpoint{ServiceName: "app2"}
	db := &model.Endpoint{ServiceName: "db"}

	root := model.Span{
		TraceID: 1, ID: 1,
		Annotations: []model.Annotation{
			{Value: model.CoreClientSend, Endpoint: app1},
			{Value: model.CoreServerReceive, Endpoint: app2},
			{Value: model.CoreServerSend, Endpoint: app2},
			{Value: model.CoreClientReceive, Endpoint: app1},
		},
	}
	dbCall := model.Span{
		TraceID: 1, ID: 2, ParentID: ptr(1),
		Annotations: []model.Annotation{
			{Value: model.CoreClientSend, Endpoint: app2},
		},
		BinaryAnnotations: []model.BinaryAnnotation{
			{Key: model.KeyServerAddr, Endpoint: db},
		},
	}

	links := Link([][]model.Span{{root, dbCall}})
	require.Len(t, links, 2)

	byPair := map[[2]string]model.DependencyLink{}
	for _, l := range links {
		byPair[[2]string{l.Parent, l.Child}] = l
	}
	app1app2, ok := byPair[[2]string{"app1", "app2"}]
	require.True(t, ok)
	assert.Equal(t, int64(1), app1app2.CallCount)

	app2db, ok := byPair[[2]string{"app2", "db"}]
	require.True(t, ok)
	assert.Equal(t, int64(1), app2db.CallCount)
}

func TestLinkAggregatesAcrossTraces(t *testing.T) {
	app1 := &model.Endpoint{ServiceName: "app1"}
	app2 := &model.Endpoint{ServiceName: "app2"}
	mkTrace := func(traceID int64, hasError bool) []model.Span {
		anns := []model.Annotation{
			{Value: model.CoreClientSend, Endpoint: app1},
			{Value: model.CoreServerReceive, Endpoint: app2},
		}
		bas := []model.BinaryAnnotation(nil)
		if hasError {
			bas = append(bas, model.BinaryAnnotation{Key: "error"})
		}
		return []model.Span{
			{TraceID: traceID, ID: 1, Annotations: []model.Annotation{{Value: model.CoreClientSend, Endpoint: app1}}},
			{TraceID: traceID, ID: 2, ParentID: ptr(1), Annotations: anns, BinaryAnnotations: bas},
		}
	}

	links := Link([][]model.Span{mkTrace(1, false), mkTrace(2, true)})
	require.Len(t, links, 1)
	assert.Equal(t, int64(2), links[0].CallCount)
	assert.Equal(t, int64(1), links[0].ErrorCount)
}

func TestLinkSkipsSelfLoopSpan(t *testing.T) {
	ep := &model.Endpoint{ServiceName: "svc"}
	selfLoop := model.Span{
		TraceID: 1, ID: 1, ParentID: ptr(1),
		Annotations: []model.Annotation{{Value: model.CoreServerReceive, Endpoint: ep}},
	}
	other := model.Span{TraceID: 1, ID: 2, ParentID: ptr(1)}
	links := Link([][]model.Span{{selfLoop, other}})
	assert.Empty(t, links)
}

func TestLinkSkipsTracesWithFewerThanTwoSpans(t *testing.T) {
	assert.Empty(t, Link([][]model.Span{{{TraceID: 1, ID: 1}}}))
	assert.Empty(t, Link([][]model.Span{nil}))
}

func TestLinkResolvesPastLocalSpan(t *testing.T) {
	app1 := &model.Endpoint{ServiceName: "app1"}
	app2 := &model.Endpoint{ServiceName: "app2"}
	root := model.Span{TraceID: 1, ID: 1, Annotations: []model.Annotation{{Value: model.CoreClientSend, Endpoint: app1}}}
	local := model.Span{TraceID: 1, ID: 2, ParentID: ptr(1), Name: "local-work"}
	grandchild := model.Span{
		TraceID: 1, ID: 3, ParentID: ptr(2),
		Annotations: []model.Annotation{{Value: model.CoreServerReceive, Endpoint: app2}},
	}

	links := Link([][]model.Span{{root, local, grandchild}})
	require.Len(t, links, 1)
	assert.Equal(t, "app1", links[0].Parent)
	assert.Equal(t, "app2", links[0].Child)
}

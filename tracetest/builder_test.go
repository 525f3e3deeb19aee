package tracetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracestore/core/model"
)

func TestStartProducesServerReceiveAnnotation(t *testing.T) {
	span := Start("svc", "op").Finish()
	require.Len(t, span.Annotations, 2)
	assert.Equal(t, model.CoreServerReceive, span.Annotations[0].Value)
	assert.Equal(t, model.CoreServerSend, span.Annotations[1].Value)
}

func TestStartChildSharesTraceAndSetsParent(t *testing.T) {
	root := Start("app1", "root")
	rootID := root.ID()
	child := StartChild(root.span.TraceID, &rootID, "app2", "child")
	assert.Equal(t, root.span.TraceID, child.span.TraceID)
	require.NotNil(t, child.span.ParentID)
	assert.Equal(t, rootID, *child.span.ParentID)
}

func TestSetErrorAddsErrorBinaryAnnotation(t *testing.T) {
	span := Start("svc", "op").SetError(errors.New("boom")).Finish()
	require.Len(t, span.BinaryAnnotations, 1)
	assert.Equal(t, "error", span.BinaryAnnotations[0].Key)
	assert.Equal(t, "boom", span.BinaryAnnotations[0].StringValue())
	assert.True(t, span.HasError())
}

func TestIDIsStableBeforeFinish(t *testing.T) {
	b := Start("svc", "op")
	id := b.ID()
	span := b.Finish()
	assert.Equal(t, id, span.ID)
}

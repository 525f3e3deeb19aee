// Package tracetest provides a small span-builder helper for tests and
// examples, adapted from OmniTrace's sdk.Tracer/SpanBuilder but
// producing model.Span values with the int64, Zipkin-style
// (traceId, id) identity the stores operate on instead of the SDK's
// own hex string ids.
package tracetest

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/tracestore/core/model"
)

// NewTraceID returns a random trace id suitable for test fixtures.
func NewTraceID() int64 {
	return randomID()
}

// randomID derives an int64 identifier from a random UUID's first
// eight bytes. Collisions are astronomically unlikely for fixture
// purposes; this is not used on any durable-state path.
func randomID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) &^ (1 << 63))
}

// Builder constructs a model.Span incrementally, mirroring the
// Start/SetTag/SetError/Finish shape of sdk.SpanBuilder.
type Builder struct {
	span     model.Span
	endpoint *model.Endpoint
	started  time.Time
}

// Start begins a new span for service, named name, on a fresh trace.
func Start(service, name string) *Builder {
	return StartChild(NewTraceID(), nil, service, name)
}

// StartChild begins a new span within traceID, optionally parented by
// parentID.
func StartChild(traceID int64, parentID *int64, service, name string) *Builder {
	ep := &model.Endpoint{ServiceName: service}
	now := time.Now()
	ts := now.UnixMicro()
	b := &Builder{
		span: model.Span{
			TraceID:  traceID,
			ID:       randomID(),
			ParentID: parentID,
			Name:     name,
			Annotations: []model.Annotation{
				{Timestamp: ts, Value: model.CoreServerReceive, Endpoint: ep},
			},
		},
		endpoint: ep,
		started:  now,
	}
	return b
}

// SetTag records a string binary annotation.
func (b *Builder) SetTag(key, value string) *Builder {
	b.span.BinaryAnnotations = append(b.span.BinaryAnnotations, model.BinaryAnnotation{
		Key: key, Value: []byte(value), Type: model.TypeString, Endpoint: b.endpoint,
	})
	return b
}

// SetError marks the span as failed via the conventional "error" tag.
func (b *Builder) SetError(err error) *Builder {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return b.SetTag("error", msg)
}

// ID returns the span id assigned at Start/StartChild time, so callers
// can parent a child span before Finish is called.
func (b *Builder) ID() int64 { return b.span.ID }

// Finish stamps the server-send annotation and returns the completed
// span.
func (b *Builder) Finish() model.Span {
	ts := time.Now().UnixMicro()
	b.span.Annotations = append(b.span.Annotations, model.Annotation{
		Timestamp: ts, Value: model.CoreServerSend, Endpoint: b.endpoint,
	})
	return b.span
}

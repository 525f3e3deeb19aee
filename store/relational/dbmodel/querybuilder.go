package dbmodel

import (
	"fmt"
	"strings"

	"github.com/tracestore/core/model"
)

// maxDurationSentinel stands in for "no upper bound" when only
// MinDuration is set, per §4.6.
const maxDurationSentinel = int64(1<<63 - 1)

// TraceIDQuery is a fully-bound SELECT DISTINCT spans.trace_id query
// translating a QueryRequest per §4.6: one self-join alias per
// requested annotation/binary-annotation, filtered by service, time
// window, optional span name and duration range, ordered by
// spans.start_ts DESC and limited.
type TraceIDQuery struct {
	SQL  string
	Args []interface{}
}

// BuildTraceIDQuery translates req into a Postgres query selecting
// matching trace ids. req must already be validated and lowercased.
func BuildTraceIDQuery(req model.QueryRequest) TraceIDQuery {
	var b strings.Builder
	var args []interface{}
	n := 0
	bind := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	b.WriteString("SELECT DISTINCT spans.trace_id FROM spans\n")
	b.WriteString("JOIN annotations base ON base.trace_id = spans.trace_id AND base.span_id = spans.id\n")

	joinIdx := 0
	for _, ann := range req.Annotations {
		joinIdx++
		alias := fmt.Sprintf("a%d", joinIdx)
		fmt.Fprintf(&b, "JOIN annotations %s ON %s.trace_id = spans.trace_id AND %s.span_id = spans.id"+
			" AND %s.a_type = %d AND %s.a_key = %s\n",
			alias, alias, alias, alias, RegularAnnotationType, alias, bind(ann))
	}
	for key, value := range req.BinaryAnnotations {
		joinIdx++
		alias := fmt.Sprintf("a%d", joinIdx)
		fmt.Fprintf(&b, "JOIN annotations %s ON %s.trace_id = spans.trace_id AND %s.span_id = spans.id"+
			" AND %s.a_type = %d AND %s.a_key = %s AND %s.a_value = %s\n",
			alias, alias, alias, alias, int32(model.TypeString), alias, bind(key), alias, bind([]byte(value)))
	}

	b.WriteString("WHERE base.endpoint_service_name = " + bind(req.ServiceName) + "\n")
	start, end := req.TimeWindowMicros()
	b.WriteString("AND spans.start_ts BETWEEN " + bind(start) + " AND " + bind(end) + "\n")

	if req.SpanName != nil {
		b.WriteString("AND spans.name = " + bind(*req.SpanName) + "\n")
	}

	minDuration := int64(0)
	if req.MinDuration != nil {
		minDuration = *req.MinDuration
	}
	maxDuration := maxDurationSentinel
	if req.MaxDuration != nil {
		maxDuration = *req.MaxDuration
	}
	if req.MinDuration != nil || req.MaxDuration != nil {
		b.WriteString("AND spans.duration BETWEEN " + bind(minDuration) + " AND " + bind(maxDuration) + "\n")
	}

	b.WriteString("ORDER BY spans.start_ts DESC\n")
	b.WriteString("LIMIT " + bind(req.Limit))

	return TraceIDQuery{SQL: b.String(), Args: args}
}

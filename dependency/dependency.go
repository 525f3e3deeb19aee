// Package dependency implements the DependencyLinker (§4.7): it
// reconstructs the parent/child tree of each trace, classifies edges
// as client→server calls, and aggregates call/error counts across
// traces into DependencyLinks.
package dependency

import "github.com/tracestore/core/model"

// extractedSpan is the per-span projection (DependencyLinkSpan) the
// linker needs.
//
// Beyond the three endpoint fields named in §4.7 (caService,
// saService, srService), this also captures csService: the endpoint
// of the span's own client-send annotation. Zipkin-style
// instrumentation shares one span id between the client and server
// side of a call, so a span's own "cs" endpoint is frequently the only
// way to name the caller of a server span it also carries "sr" for —
// see the "self-announced caller" note in DESIGN.md for the worked
// example this resolves.
type extractedSpan struct {
	id        int64
	parentID  int64
	hasParent bool
	selfLoop  bool

	caService string
	saService string
	srService string
	csService string

	hasError bool
}

func extract(s model.Span) extractedSpan {
	e := extractedSpan{id: s.ID, hasError: s.HasError()}
	if s.ParentID != nil {
		e.hasParent = true
		e.parentID = *s.ParentID
		if *s.ParentID == s.ID {
			e.selfLoop = true
		}
	}
	for _, b := range s.BinaryAnnotations {
		if b.Endpoint == nil {
			continue
		}
		switch b.Key {
		case model.KeyClientAddr:
			e.caService = b.Endpoint.ServiceName
		case model.KeyServerAddr:
			e.saService = b.Endpoint.ServiceName
		}
	}
	for _, a := range s.Annotations {
		if a.Endpoint == nil {
			continue
		}
		switch a.Value {
		case model.CoreServerReceive:
			e.srService = a.Endpoint.ServiceName
		case model.CoreClientSend:
			e.csService = a.Endpoint.ServiceName
		}
	}
	return e
}

// isLocal reports whether a span carries none of the four identity
// markers — it is not itself part of any client→server edge, but its
// children's parentage still resolves through it.
func (e extractedSpan) isLocal() bool {
	return e.srService == "" && e.saService == "" && e.csService == "" && e.caService == ""
}

// ownIdentity is the service name this span announces about itself,
// preferring the server role over the client role.
func (e extractedSpan) ownIdentity() string {
	switch {
	case e.srService != "":
		return e.srService
	case e.csService != "":
		return e.csService
	default:
		return e.caService
	}
}

type edgeKey struct{ parent, child string }

// Link builds the aggregated DependencyLinks observed across traces.
// Each element of traces is one trace's spans (merged; order does not
// matter).
func Link(traces [][]model.Span) []model.DependencyLink {
	totals := make(map[edgeKey]*model.DependencyLink)

	for _, trace := range traces {
		for key, delta := range linkOneTrace(trace) {
			agg, ok := totals[key]
			if !ok {
				agg = &model.DependencyLink{Parent: key.parent, Child: key.child}
				totals[key] = agg
			}
			agg.CallCount += delta.CallCount
			agg.ErrorCount += delta.ErrorCount
		}
	}

	out := make([]model.DependencyLink, 0, len(totals))
	for _, link := range totals {
		out = append(out, *link)
	}
	return out
}

func linkOneTrace(trace []model.Span) map[edgeKey]model.DependencyLink {
	if len(trace) < 2 {
		return nil
	}

	byID := make(map[int64]extractedSpan, len(trace))
	for _, s := range trace {
		byID[s.ID] = extract(s)
	}

	edges := make(map[edgeKey]model.DependencyLink)
	for _, span := range byID {
		if span.selfLoop {
			continue
		}

		switch {
		case span.srService != "":
			caller := callerIdentity(span, byID)
			if caller == "" {
				continue
			}
			addEdge(edges, caller, span.srService, span.hasError)
		case span.saService != "":
			caller := callerIdentity(span, byID)
			if caller == "" {
				continue
			}
			addEdge(edges, caller, span.saService, span.hasError)
		default:
			// local span: contributes no edge of its own.
		}
	}
	return edges
}

// callerIdentity names the service that called span: the span's own
// csService if it recorded one, else its caService when it has no
// srService, else the nearest non-local ancestor's own identity.
func callerIdentity(span extractedSpan, byID map[int64]extractedSpan) string {
	if span.csService != "" {
		return span.csService
	}
	if span.srService == "" && span.caService != "" {
		// a client-only span announces itself via "ca"; that *is* its
		// own identity, not its caller's, so only use it here when
		// span has no server role of its own.
		return span.caService
	}

	visited := map[int64]bool{span.id: true}
	current := span
	for current.hasParent && !current.selfLoop {
		parent, ok := byID[current.parentID]
		if !ok || visited[parent.id] {
			return ""
		}
		visited[parent.id] = true
		if parent.selfLoop {
			return ""
		}
		if !parent.isLocal() {
			return parent.ownIdentity()
		}
		current = parent
	}
	return ""
}

func addEdge(edges map[edgeKey]model.DependencyLink, parent, child string, hasError bool) {
	if parent == "" || child == "" {
		return
	}
	key := edgeKey{parent, child}
	link := edges[key]
	link.Parent, link.Child = parent, child
	link.CallCount++
	if hasError {
		link.ErrorCount++
	}
	edges[key] = link
}

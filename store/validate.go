package store

import (
	"fmt"

	"github.com/tracestore/core/model"
)

// ValidateQueryRequest applies the §7 BadRequest checks shared by both
// backends. A malformed time window (endTs < lookback) is deliberately
// NOT rejected here — it is left to yield an empty result.
func ValidateQueryRequest(req model.QueryRequest) error {
	if req.ServiceName == "" {
		return BadRequest("GetTraces", fmt.Errorf("serviceName is required"))
	}
	if req.Limit < 1 {
		return BadRequest("GetTraces", fmt.Errorf("limit must be >= 1, got %d", req.Limit))
	}
	return nil
}

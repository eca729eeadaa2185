package request

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/yumyai/varquery/pkg/filter"
)

// QueryRequest is the body of the query and explain endpoints. No studies
// means every study.
type QueryRequest struct {
	Studies []string        `json:"studies"`
	Filter  json.RawMessage `json:"filter"`
}

// DecodeQuery reads a QueryRequest and its filter, rejecting unknown keys at
// both levels.
func DecodeQuery(r io.Reader) ([]string, *filter.Filter, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var req QueryRequest
	if err := dec.Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("decode request: %w", err)
	}
	if len(req.Filter) == 0 {
		return req.Studies, &filter.Filter{}, nil
	}
	f, err := filter.DecodeBytes(req.Filter)
	if err != nil {
		return nil, nil, err
	}
	return req.Studies, f, nil
}

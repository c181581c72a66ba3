package model

import (
	"fmt"
	"maps"
)

// RequestTemplate is the read-only request shape shared by every row of a case.
type RequestTemplate struct {
	URL        string
	Headers    map[string]string
	Body       map[string]any
	QueryField string
}

// BuildBody encodes the request body for one query: the template's top-level
// fields plus QueryField set to a one-element list holding query. The template
// itself is never modified.
func (t RequestTemplate) BuildBody(query string) ([]byte, error) {
	body := make(map[string]any, len(t.Body)+1)
	maps.Copy(body, t.Body)
	body[t.queryField()] = []string{query}
	data, err := encodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

func (t RequestTemplate) queryField() string {
	if t.QueryField == "" {
		return DefaultQueryField
	}
	return t.QueryField
}

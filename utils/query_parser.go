package utils

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TimeFilterParams holds parsed time filter parameters
type TimeFilterParams struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// ParseTimeFilters extracts and validates time filter query parameters from HTTP request
func ParseTimeFilters(r *http.Request) (*TimeFilterParams, error) {
	params := &TimeFilterParams{}

	if str := r.URL.Query().Get("created_after"); str != "" {
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return nil, fmt.Errorf("invalid created_after format. Use RFC3339 (e.g., 2025-11-13T10:00:00Z)")
		}
		params.CreatedAfter = &parsed
	}

	if str := r.URL.Query().Get("created_before"); str != "" {
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return nil, fmt.Errorf("invalid created_before format. Use RFC3339 (e.g., 2025-11-13T10:00:00Z)")
		}
		params.CreatedBefore = &parsed
	}

	return params, nil
}

// ParseDateParam reads an optional YYYY-MM-DD query parameter.
func ParseDateParam(r *http.Request, name string) (*time.Time, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return nil, nil
	}
	t, err := ParseDate(str)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

// ParseBoolParam reads an optional boolean query parameter.
func ParseBoolParam(r *http.Request, name string) (*bool, error) {
	str := strings.TrimSpace(r.URL.Query().Get(name))
	if str == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(str)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: must be true or false", name)
	}
	return &b, nil
}

// ParseLimit reads ?limit=, falling back to def for missing or bad values.
func ParseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

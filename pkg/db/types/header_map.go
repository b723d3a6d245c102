package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// HeaderMap stores event headers (trace/correlation identifiers and
// provenance metadata) as a jsonb string map. Values pass through the
// pipeline unchanged.
type HeaderMap map[string]string

func (h *HeaderMap) Scan(src any) error {
	if src == nil {
		*h = HeaderMap{}
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return h.parseJSON(v)
	case string:
		return h.parseJSON([]byte(v))
	default:
		return fmt.Errorf("HeaderMap: unsupported Scan type %T", src)
	}
}

func (h HeaderMap) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, fmt.Errorf("HeaderMap: marshal: %w", err)
	}
	return string(raw), nil
}

func (h *HeaderMap) parseJSON(raw []byte) error {
	if len(raw) == 0 {
		*h = HeaderMap{}
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("HeaderMap: unmarshal: %w", err)
	}
	if out == nil {
		out = map[string]string{}
	}
	*h = out
	return nil
}

// Clone returns a copy so callers cannot mutate a stored record's headers.
func (h HeaderMap) Clone() HeaderMap {
	out := make(HeaderMap, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

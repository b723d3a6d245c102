package dbtypes

import "testing"

func TestHeaderMapRoundTrip(t *testing.T) {
	headers := HeaderMap{"trace_id": "t-1", "correlation_id": "c-1"}

	value, err := headers.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var restored HeaderMap
	if err := restored.Scan(value); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if restored["trace_id"] != "t-1" || restored["correlation_id"] != "c-1" {
		t.Fatalf("unexpected restored map: %v", restored)
	}
}

func TestHeaderMapScanNil(t *testing.T) {
	var headers HeaderMap
	if err := headers.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if headers == nil || len(headers) != 0 {
		t.Fatalf("expected empty map, got %v", headers)
	}
}

func TestHeaderMapCloneIsIndependent(t *testing.T) {
	headers := HeaderMap{"trace_id": "t-1"}
	clone := headers.Clone()
	clone["trace_id"] = "changed"
	if headers["trace_id"] != "t-1" {
		t.Fatal("clone mutated the original")
	}
}

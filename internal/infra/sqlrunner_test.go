package infra

import (
	"strings"
	"testing"

	"server/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	marker, query, err := extractMarker(sqlinline.QGetGenerationByID)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if len(marker) != 36 {
		t.Errorf("marker %q is not a uuid", marker)
	}
	if strings.Contains(query, "--sql") {
		t.Error("marker line must be stripped from the executed query")
	}
	if !strings.Contains(query, "from generation_request") {
		t.Errorf("query body lost: %q", query)
	}
}

func TestExtractMarkerRejectsUnmarkedSQL(t *testing.T) {
	if _, _, err := extractMarker("select 1;"); err == nil {
		t.Fatal("expected error for query without audit marker")
	}
}

func TestAllInlineQueriesCarryMarkers(t *testing.T) {
	queries := map[string]string{
		"QInsertGenerationRequest":          sqlinline.QInsertGenerationRequest,
		"QGetGenerationByID":                sqlinline.QGetGenerationByID,
		"QGetGenerationByIdempotencyKey":    sqlinline.QGetGenerationByIdempotencyKey,
		"QClaimGenerationForRun":            sqlinline.QClaimGenerationForRun,
		"QInsertGenerationOutput":           sqlinline.QInsertGenerationOutput,
		"QInsertUsageCost":                  sqlinline.QInsertUsageCost,
		"QMarkGenerationSucceeded":          sqlinline.QMarkGenerationSucceeded,
		"QMarkGenerationFailed":             sqlinline.QMarkGenerationFailed,
		"QListGenerationOutputs":            sqlinline.QListGenerationOutputs,
		"QGetUsageCost":                     sqlinline.QGetUsageCost,
		"QCountGenerationsBySession":        sqlinline.QCountGenerationsBySession,
		"QListGenerationsBySession":         sqlinline.QListGenerationsBySession,
		"QDeleteUsageCostByRequest":         sqlinline.QDeleteUsageCostByRequest,
		"QDeleteGenerationOutputsByRequest": sqlinline.QDeleteGenerationOutputsByRequest,
		"QDeleteGenerationRequest":          sqlinline.QDeleteGenerationRequest,
		"QListStaleGenerations":             sqlinline.QListStaleGenerations,
	}
	seen := make(map[string]string)
	for name, query := range queries {
		marker, _, err := extractMarker(query)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if prev, dup := seen[marker]; dup {
			t.Errorf("%s shares marker %s with %s", name, marker, prev)
		}
		seen[marker] = name
	}
}

package utils

import (
	"strings"
	"testing"

	"encore.app/pkg/models"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	stats := models.MonthlyStats{
		Month:            "2024-05",
		AppointmentCount: 12,
		NewPatients:      3,
		TotalRevenue:     5000,
		TotalExpenses:    1200,
		NetProfit:        3800,
	}

	data, err := MarshalJSON(stats)
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	var decoded models.MonthlyStats
	if err := UnmarshalJSON(data, &decoded); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if decoded != stats {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, stats)
	}
}

func TestUnmarshalEmptyData(t *testing.T) {
	var v map[string]any
	if err := UnmarshalJSON(nil, &v); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestPrettyJSON(t *testing.T) {
	pretty, err := PrettyJSON([]byte(`{"net_profit":3800,"month":"2024-05"}`))
	if err != nil {
		t.Fatalf("PrettyJSON() error = %v", err)
	}
	if !strings.Contains(string(pretty), "\n  ") {
		t.Errorf("output not indented: %s", pretty)
	}

	if _, err := PrettyJSON([]byte(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

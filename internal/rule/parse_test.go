package rule

import (
	"errors"
	"testing"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want Descriptor
	}{
		{name: "year literal", raw: "year", want: Descriptor{Unit: UnitYear}},
		{name: "month literal", raw: "month", want: Descriptor{Unit: UnitMonth}},
		{name: "week literal", raw: "week", want: Descriptor{Total: 7, Unit: UnitWeek}},
		{name: "uppercase literal", raw: " YEAR ", want: Descriptor{Unit: UnitYear}},
		{name: "seconds", raw: "30s", want: Descriptor{Total: 30, Unit: UnitSeconds}},
		{name: "minutes", raw: "10m", want: Descriptor{Total: 600, Unit: UnitMinutes}},
		{name: "hours", raw: "16h", want: Descriptor{Total: 57600, Unit: UnitHours}},
		{name: "days", raw: "365d", want: Descriptor{Total: 365, Unit: UnitDays}},
		{name: "fractional value", raw: "1.5h", want: Descriptor{Total: 5400, Unit: UnitHours}},
		{name: "hours with offset", raw: "16h 8h", want: Descriptor{Total: 57600, Offset: 28800, Unit: UnitHours}},
		{name: "offset in minutes", raw: "8h 30m", want: Descriptor{Total: 28800, Offset: 1800, Unit: UnitHours}},
		{name: "padded compound", raw: "  16h   8h  ", want: Descriptor{Total: 57600, Offset: 28800, Unit: UnitHours}},
		{name: "malformed offset ignored", raw: "16h zz", want: Descriptor{Total: 57600, Unit: UnitHours}},
		{name: "offset on non-hour rule ignored", raw: "30s 10s", want: Descriptor{Total: 30, Unit: UnitSeconds}},
		{name: "extra tokens ignored", raw: "16h 8h 4h", want: Descriptor{Total: 57600, Offset: 28800, Unit: UnitHours}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "60x", "abc", "s", "h", "0s", "-5m", "0.0h"} {
		if _, err := Parse(raw); !errors.Is(err, ErrBadRule) {
			t.Fatalf("Parse(%q): expected ErrBadRule, got %v", raw, err)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()
	a, err := Parse("16h 8h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	b, err := Parse("16h 8h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if a != b {
		t.Fatalf("Parse not deterministic: %+v vs %+v", a, b)
	}
}

func TestGranularityMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Granularity
	}{
		{"30s", Second},
		{"10m", Minute},
		{"16h 8h", Hour},
		{"365d", Day},
		{"week", Day},
		{"month", Day},
		{"year", Day},
	}
	for _, tt := range tests {
		d, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.raw, err)
		}
		if got := d.Granularity(); got != tt.want {
			t.Fatalf("Granularity(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

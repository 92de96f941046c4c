package dateparse

import (
	"errors"
	"testing"
	"time"

	"github.com/mschirtzinger/khata/internal/schema"
)

func TestParse(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, ist)
	p := New()

	tests := []struct {
		name string
		text string
		want schema.Date
	}{
		{"empty is today", "", schema.NewDate(2026, 3, 14)},
		{"iso date", "2026-02-28", schema.NewDate(2026, 2, 28)},
		{"rfc3339", "2026-01-05T23:10:00+05:30", schema.NewDate(2026, 1, 5)},
		{"today", "today", schema.NewDate(2026, 3, 14)},
		{"yesterday", "yesterday", schema.NewDate(2026, 3, 13)},
		{"padded", "  yesterday  ", schema.NewDate(2026, 3, 13)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.text, base)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseUnrecognized(t *testing.T) {
	_, err := New().Parse("banana", time.Now())
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("expected ErrUnrecognized, got %v", err)
	}
}

package query

import (
	"strings"
	"testing"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"valid simple", "doctors", false, ""},
		{"valid underscore prefix", "_prisma_migrations", false, ""},
		{"valid leading digit", "2024_visits", false, ""},
		{"valid mixed case", "LabResults", false, ""},
		{"empty", "", true, "cannot be empty"},
		{"contains space", "lab results", true, "must match"},
		{"contains dash", "lab-results", true, "must match"},
		{"contains quote", `doctors"`, true, "must match"},
		{"contains dot", "public.doctors", true, "must match"},
		{"SQL injection attempt", "doctors; DROP TABLE users--", true, "must match"},
		{"too long", strings.Repeat("a", 129), true, "too long"},
		{"max length ok", strings.Repeat("a", 128), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.input)
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error for %q: %v", tt.input, err)
				}
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("doctors"); got != `"doctors"` {
		t.Errorf("got %s", got)
	}
	if got := QuoteIdentifier(`a"b`); got != `"a""b"` {
		t.Errorf("got %s", got)
	}
}

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fever", "%fever%"},
		{"100%", `%100\%%`},
		{"lab_result", `%lab\_result%`},
		{`a\b`, `%a\\b%`},
	}
	for _, tt := range tests {
		if got := ContainsPattern(tt.in); got != tt.want {
			t.Errorf("ContainsPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package validation

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{
			name:  "plain address",
			email: "client@example.com",
			valid: true,
		},
		{
			name:  "missing domain",
			email: "client@",
			valid: false,
		},
		{
			name:  "display name form",
			email: "Client <client@example.com>",
			valid: false,
		},
		{
			name:  "empty string",
			email: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidEmail(tt.email)
			if got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}

func TestIsValidInvoiceNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "regular number",
			number: "INV-20250309-0001",
			valid:  true,
		},
		{
			name:   "short sequence",
			number: "INV-20250309-17",
			valid:  false,
		},
		{
			name:   "missing prefix",
			number: "20250309-0001",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidInvoiceNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidInvoiceNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestNormalizeIssueTypes(t *testing.T) {
	got := NormalizeIssueTypes([]string{"Hardware", " Software ", "Hardware", "Nonsense", ""})

	want := []string{"Hardware", "Software"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeIssueTypes = %v, want %v", got, want)
	}
}

func TestStringListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		data string
		want StringList
	}{
		{
			name: "array",
			data: `["Hardware","Network"]`,
			want: StringList{"Hardware", "Network"},
		},
		{
			name: "scalar",
			data: `"Hardware"`,
			want: StringList{"Hardware"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringList
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

package ui

import (
	"reflect"
	"testing"
)

func TestSuggest(t *testing.T) {
	candidates := []string{"Customer", "Organization", "Invoice", "Invoices"}

	tests := []struct {
		target   string
		expected []string
	}{
		{"Custmer", []string{"Customer"}},
		{"customer", []string{"Customer"}},
		{"Invoic", []string{"Invoice", "Invoices"}},
		{"Shipment", nil},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := Suggest(tt.target, candidates)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Suggest(%q) = %v, expected %v", tt.target, got, tt.expected)
			}
		})
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		if got := editDistance(tt.a, tt.b); got != tt.expected {
			t.Errorf("editDistance(%q, %q) = %d, expected %d", tt.a, tt.b, got, tt.expected)
		}
	}
}

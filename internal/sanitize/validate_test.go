package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "default", input: "default"},
		{name: "mixed case with dash", input: "Team-A"},
		{name: "dotted", input: "org.team_1"},
		{name: "max length", input: strings.Repeat("a", MaxNamespaceLength)},
		{name: "empty", input: "", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxNamespaceLength+1), wantErr: true},
		{name: "traversal", input: "a..b", wantErr: true},
		{name: "slash", input: "team/a", wantErr: true},
		{name: "space", input: "team a", wantErr: true},
		{name: "leading dash", input: "-team", wantErr: true},
		{name: "quote", input: "team'a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNamespace) {
					t.Errorf("ValidateNamespace(%q) error = %v, want ErrInvalidNamespace", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateNamespace(%q) unexpected error: %v", tt.input, err)
			}
		})
	}
}

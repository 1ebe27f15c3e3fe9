package server

import (
	"strings"
	"testing"
)

func TestValidateCustomTheme(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "valid theme",
			input: "Nothing says teamwork like " + blankMarker + ".",
			want:  "Nothing says teamwork like " + blankMarker + ".",
		},
		{
			name:  "whitespace is collapsed",
			input: "  Nothing   says\tteamwork like " + blankMarker + ".  ",
			want:  "Nothing says teamwork like " + blankMarker + ".",
		},
		{
			name:    "too short",
			input:   blankMarker + "!",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   blankMarker + " " + strings.Repeat("y", maxCustomThemeLength),
			wantErr: true,
		},
		{
			name:    "missing blank",
			input:   "a perfectly fine sentence with no blank in it",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateCustomTheme(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

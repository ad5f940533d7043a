package validator_test

import (
	"strings"
	"testing"

	"converse-backend/internal/validator"
)

func TestCredentials(t *testing.T) {
	tests := []struct {
		name  string
		check func(string) error
		input string
		want  string
	}{
		{"Email: plain", validator.Email, "user@gmail.com", ""},
		{"Email: mixed case and plus tag", validator.Email, "Jane.Doe+chat@Outlook.com", ""},
		{"Email: 60 chars", validator.Email, strings.Repeat("a", 50) + "@gmail.com", ""},
		{"Error: Email over 64 chars", validator.Email, strings.Repeat("a", 55) + "@gmail.com", "long_email"},
		{"Error: Email without @", validator.Email, "usergmail.com", "bad_format"},
		{"Error: Email starting with a dot", validator.Email, ".user@gmail.com", "bad_format"},
		{"Error: Email without TLD", validator.Email, "user@gmail", "bad_format"},
		{"Error: Email with one letter TLD", validator.Email, "user@gmail.c", "bad_format"},
		{"Error: Email from unknown provider", validator.Email, "user@example.org", "unknown_domain"},

		{"Username: shortest", validator.Username, "bob", ""},
		{"Username: punctuation", validator.Username, "jane.doe_99", ""},
		{"Error: Username too short", validator.Username, "ab", "short_username"},
		{"Error: Username too long", validator.Username, strings.Repeat("u", 31), "long_username"},
		{"Error: Username with space", validator.Username, "jane doe", "bad_username"},
		{"Error: Username with accent", validator.Username, "émile", "bad_username"},

		{"Password: shortest", validator.Password, "aA1bB2", ""},
		{"Password: longest", validator.Password, "aB1" + strings.Repeat("x", 29), ""},
		{"Error: Password too short", validator.Password, "aA1", "short_password"},
		{"Error: Password too long", validator.Password, "aB1" + strings.Repeat("x", 30), "long_password"},
		{"Error: Password without lowercase", validator.Password, "ABCDEF123", "no_lowercase"},
		{"Error: Password without uppercase", validator.Password, "abcdef123", "no_uppercase"},
		{"Error: Password without number", validator.Password, "Abcdefgh", "no_number"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check(tc.input)

			switch {
			case tc.want == "" && err != nil:
				t.Errorf("%q: unexpected error %v", tc.input, err)
			case tc.want != "" && err == nil:
				t.Errorf("%q: passed, want %s", tc.input, tc.want)
			case tc.want != "" && err.Error() != tc.want:
				t.Errorf("%q: got %v, want %s", tc.input, err, tc.want)
			}
		})
	}
}

package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// domains are the mail providers accepted at registration.
var domains = []string{
	"@gmail.com",
	"@googlemail.com",
	"@outlook.com",
	"@hotmail.com",
	"@live.com",
	"@yahoo.com",
	"@yahoo.co.uk",
	"@icloud.com",
	"@proton.me",
	"@protonmail.com",
	"@gmx.de",
	"@gmx.net",
	"@web.de",
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	lowercase     = regexp.MustCompile(`[a-z]`)
	uppercase     = regexp.MustCompile(`[A-Z]`)
	number        = regexp.MustCompile(`\d`)
)

func Email(email string) error {
	const maxlength = 64

	if len(email) > maxlength {
		return fmt.Errorf("long_email")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("bad_format")
	}

	lower := strings.ToLower(email)
	for i := 0; i < len(domains); i++ {
		if strings.HasSuffix(lower, domains[i]) {
			return nil
		}
	}

	return fmt.Errorf("unknown_domain")
}

func Username(username string) error {
	length := utf8.RuneCountInString(username)
	if length < 3 {
		return fmt.Errorf("short_username")
	} else if length > 30 {
		return fmt.Errorf("long_username")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("bad_username")
	}
	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 6 {
		return fmt.Errorf("short_password")
	} else if length > 32 {
		return fmt.Errorf("long_password")
	}

	if !lowercase.MatchString(password) {
		return fmt.Errorf("no_lowercase")
	}
	if !uppercase.MatchString(password) {
		return fmt.Errorf("no_uppercase")
	}
	if !number.MatchString(password) {
		return fmt.Errorf("no_number")
	}
	return nil
}

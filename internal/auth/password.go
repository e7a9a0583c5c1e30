package auth

import (
	"fmt"
	"unicode"
)

const (
	minPasswordLength = 8
	minUppercase      = 1
	minDigits         = 1
	minSpecial        = 1
)

// PasswordProblems lists every policy rule pw breaks. An empty result means
// the password is acceptable.
func PasswordProblems(pw string) []string {
	var upper, digits, special, n int
	for _, r := range pw {
		n++
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsDigit(r):
			digits++
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			special++
		}
	}

	var out []string
	if n < minPasswordLength {
		out = append(out, fmt.Sprintf("password must be at least %d characters long", minPasswordLength))
	}
	if upper < minUppercase {
		out = append(out, fmt.Sprintf("password must contain at least %d uppercase character", minUppercase))
	}
	if digits < minDigits {
		out = append(out, fmt.Sprintf("password must contain at least %d number", minDigits))
	}
	if special < minSpecial {
		out = append(out, fmt.Sprintf("password must contain at least %d special character", minSpecial))
	}
	return out
}

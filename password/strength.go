package password

import "unicode"

// Strength violation messages. Callers may match on these values.
const (
	ViolationTooShort    = "Password must be at least 8 characters long"
	ViolationNoUppercase = "Password must contain at least one uppercase letter"
	ViolationNoLowercase = "Password must contain at least one lowercase letter"
	ViolationNoDigit     = "Password must contain at least one number"
)

// StrengthResult lists every rule the password violates.
type StrengthResult struct {
	Valid  bool
	Errors []string
}

// ValidateStrength checks length, uppercase, lowercase and digit rules. Every
// rule is evaluated so the caller can report all violations at once.
func ValidateStrength(plain string) StrengthResult {
	var upper, lower, digit bool
	n := 0
	for _, r := range plain {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	var errs []string
	if n < MinLength {
		errs = append(errs, ViolationTooShort)
	}
	if !upper {
		errs = append(errs, ViolationNoUppercase)
	}
	if !lower {
		errs = append(errs, ViolationNoLowercase)
	}
	if !digit {
		errs = append(errs, ViolationNoDigit)
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

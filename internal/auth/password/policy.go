package password

import (
	"fmt"
	"unicode"

	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
)

// Policy holds the configured password strength rules: a minimum length and
// a minimum number of distinct character classes (lower, upper, digit, other).
type Policy struct {
	MinLength  int
	MinClasses int
}

func NewPolicy(minLength, minClasses int) *Policy {
	if minLength <= 0 {
		minLength = 8
	}
	if minClasses < 1 {
		minClasses = 1
	}
	if minClasses > 4 {
		minClasses = 4
	}
	return &Policy{MinLength: minLength, MinClasses: minClasses}
}

func (p *Policy) Validate(plaintext string) error {
	if len(plaintext) < p.MinLength {
		return fmt.Errorf("%w: shorter than %d characters", autherrors.ErrWeakCredential, p.MinLength)
	}

	var lower, upper, digit, other bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}

	classes := 0
	for _, present := range []bool{lower, upper, digit, other} {
		if present {
			classes++
		}
	}
	if classes < p.MinClasses {
		return fmt.Errorf("%w: needs %d character classes, has %d", autherrors.ErrWeakCredential, p.MinClasses, classes)
	}

	return nil
}

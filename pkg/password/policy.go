package password

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// SymbolSet is the set of characters that satisfy the symbol requirement.
const SymbolSet = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// defaultDenyList holds weak patterns rejected anywhere in a password,
// compared case-insensitively.
var defaultDenyList = []string{
	"password", "passw0rd", "123456", "12345678", "qwerty", "letmein", "welcome",
	"admin", "abc123", "iloveyou", "monkey", "dragon", "football", "baseball",
	"master", "sunshine", "trustno1", "111111", "changeme",
}

// Policy describes the rules a candidate password must satisfy.
type Policy struct {
	MinLength int
	// MaxBytes caps the UTF-8 length. Zero or anything above
	// MaxPasswordBytes means MaxPasswordBytes.
	MaxBytes         int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSymbol    bool
	// MaxRepeated is the longest run of one character that is allowed.
	MaxRepeated int
	DenyList    []string
}

// DefaultPolicy returns the platform policy: 12 characters, all four
// character classes, no run longer than 2 and the built-in deny-list.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        12,
		MaxBytes:         MaxPasswordBytes,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSymbol:    true,
		MaxRepeated:      2,
		DenyList:         defaultDenyList,
	}
}

// Check returns every rule pw violates, in a stable order. An empty result
// means the password is acceptable.
func (p Policy) Check(pw string) []string {
	var violations []string

	if n := len([]rune(pw)); n < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", p.MinLength))
	}
	if limit := p.maxBytes(); len(pw) > limit {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes long", limit))
	}

	c := classify(pw)
	if p.RequireUppercase && !c.upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.RequireLowercase && !c.lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.RequireDigit && !c.digit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSymbol && !c.symbol {
		violations = append(violations, "must contain a symbol")
	}
	if p.MaxRepeated > 0 && longestRun(pw) > p.MaxRepeated {
		violations = append(violations, fmt.Sprintf("must not repeat a character more than %d times in a row", p.MaxRepeated))
	}
	if pattern, ok := p.denied(pw); ok {
		violations = append(violations, fmt.Sprintf("must not contain the common pattern %q", pattern))
	}
	return violations
}

func (p Policy) maxBytes() int {
	if p.MaxBytes <= 0 || p.MaxBytes > MaxPasswordBytes {
		return MaxPasswordBytes
	}
	return p.MaxBytes
}

func (p Policy) denied(pw string) (string, bool) {
	lower := strings.ToLower(pw)
	for _, pattern := range p.DenyList {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}

type classes struct {
	upper, lower, digit, symbol bool
}

func (c classes) count() int {
	n := 0
	for _, b := range []bool{c.upper, c.lower, c.digit, c.symbol} {
		if b {
			n++
		}
	}
	return n
}

func classify(pw string) classes {
	var c classes
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case strings.ContainsRune(SymbolSet, r):
			c.symbol = true
		}
	}
	return c
}

func longestRun(pw string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range []rune(pw) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}

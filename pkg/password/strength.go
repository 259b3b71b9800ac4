package password

// Strength is a qualitative password score.
type Strength string

const (
	StrengthWeak       Strength = "weak"
	StrengthFair       Strength = "fair"
	StrengthGood       Strength = "good"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very_strong"
)

// Score rates pw from length, character-class variety and the number of
// distinct characters. Deny-listed passwords are always weak.
func (p Policy) Score(pw string) Strength {
	if _, ok := p.denied(pw); ok {
		return StrengthWeak
	}

	runes := []rune(pw)
	points := 0
	for _, threshold := range []int{8, 12, 16, 20} {
		if len(runes) >= threshold {
			points++
		}
	}
	points += classify(pw).count()

	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
	}
	if len(unique) >= 8 {
		points++
	}
	if len(unique) >= 12 {
		points++
	}

	switch {
	case points <= 3:
		return StrengthWeak
	case points <= 5:
		return StrengthFair
	case points <= 7:
		return StrengthGood
	case points <= 8:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}

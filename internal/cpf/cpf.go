// Package cpf validates and formats Brazilian individual taxpayer numbers.
package cpf

import "strings"

// Length is the number of digits in a CPF, check digits included.
const Length = 11

// Clean strips every non-digit character from s.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether s holds a valid CPF once non-digits are removed.
// The returned string is the cleaned digit sequence.
func Validate(s string) (string, bool) {
	digits := Clean(s)
	if len(digits) != Length || allSame(digits) {
		return digits, false
	}

	d := make([]int, Length)
	for i := range digits {
		d[i] = int(digits[i] - '0')
	}
	if checkDigit(d[:9]) != d[9] {
		return digits, false
	}
	if checkDigit(d[:10]) != d[10] {
		return digits, false
	}
	return digits, true
}

// Format applies the XXX.XXX.XXX-XX mask. Inputs that do not clean to eleven
// digits are returned cleaned and unmasked.
func Format(s string) string {
	digits := Clean(s)
	if len(digits) != Length {
		return digits
	}
	return digits[:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:]
}

// checkDigit computes the mod-11 check digit over d, with weights descending
// from len(d)+1 to 2.
func checkDigit(d []int) int {
	sum := 0
	weight := len(d) + 1
	for _, v := range d {
		sum += v * weight
		weight--
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

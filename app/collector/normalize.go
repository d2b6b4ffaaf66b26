package collector

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxNameLength    = 500
	minCountryLength = 2
	maxCountryLength = 8
)

var upperCaser = cases.Upper(language.Und)

// NormalizeCountry trims and upper-cases a region code so "in" and "IN" share a key.
func NormalizeCountry(country string) string {
	return upperCaser.String(strings.TrimSpace(country))
}

// ValidCountry reports whether a normalized region code is 2 to 8 ASCII letters.
func ValidCountry(country string) bool {
	if len(country) < minCountryLength || len(country) > maxCountryLength {
		return false
	}
	for i := 0; i < len(country); i++ {
		if c := country[i]; c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// normalizeName collapses whitespace in an upstream title and caps its length.
// Titles are plain text and part of the natural key, so characters such as
// '<' and '&' are kept as they arrive.
func normalizeName(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(text) > maxNameLength {
		text = string([]rune(text)[:maxNameLength])
	}
	return text
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

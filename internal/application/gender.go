package application

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// genderTable maps folded whole-word tags to a gender. Tags not listed here
// fall back to the masculin/femenin substring rule.
var genderTable = map[string]Gender{
	"m":      GenderMale,
	"h":      GenderMale,
	"hombre": GenderMale,
	"varon":  GenderMale,
	"male":   GenderMale,
	"man":    GenderMale,
	"f":      GenderFemale,
	"mujer":  GenderFemale,
	"female": GenderFemale,
	"woman":  GenderFemale,
}

var mixedMarkers = []string{"mixt", "mixed", "ambos"}

// foldTag lower-cases the tag and strips diacritics so "Masculíno" and
// "MASCULINO" normalize to the same value.
func foldTag(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		folded = strings.TrimSpace(raw)
	}
	return cases.Fold().String(folded)
}

// ParseGender normalizes a free-text attendee gender. Strings containing
// "masculin" map to male, "femenin" to female; a small table of common
// spellings is accepted as well. Anything else is GenderUnknown.
func ParseGender(raw string) Gender {
	tag := foldTag(raw)
	if tag == "" {
		return GenderUnknown
	}
	if g, ok := genderTable[tag]; ok {
		return g
	}
	male := strings.Contains(tag, "masculin")
	female := strings.Contains(tag, "femenin")
	switch {
	case male && !female:
		return GenderMale
	case female && !male:
		return GenderFemale
	}
	return GenderUnknown
}

// ParseGenderPolicy normalizes a free-text room policy tag. An empty tag
// means the room carries no restriction. The second result is false when
// the tag was present but not recognized.
func ParseGenderPolicy(raw string) (GenderPolicy, bool) {
	tag := foldTag(raw)
	if tag == "" {
		return PolicyMixed, true
	}
	for _, marker := range mixedMarkers {
		if strings.Contains(tag, marker) {
			return PolicyMixed, true
		}
	}
	switch ParseGender(tag) {
	case GenderMale:
		return PolicyMaleOnly, true
	case GenderFemale:
		return PolicyFemaleOnly, true
	}
	return PolicyUnrecognized, false
}

package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SectionKind is one of the three graded parts of a mock exam. The set is closed.
type SectionKind int

const (
	SectionSynthese SectionKind = iota + 1
	SectionEssai
	SectionTraduction
)

var sectionNames = map[SectionKind]string{
	SectionSynthese:   "Synthèse",
	SectionEssai:      "Essai",
	SectionTraduction: "Traduction",
}

// AllSections returns the kinds in grading and report order.
func AllSections() []SectionKind {
	return []SectionKind{SectionSynthese, SectionEssai, SectionTraduction}
}

func (k SectionKind) Valid() bool {
	_, ok := sectionNames[k]
	return ok
}

// DisplayName is the human label used in file names and report headings.
func (k SectionKind) DisplayName() string {
	if name, ok := sectionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SectionKind(%d)", int(k))
}

func (k SectionKind) String() string { return k.DisplayName() }

// Key is the accent-free lowercase tag ("synthese", "essai", "traduction").
func (k SectionKind) Key() string {
	return FoldName(k.DisplayName())
}

// ParseSectionKind accepts a display name or key in any case, with or without accents.
func ParseSectionKind(raw string) (SectionKind, error) {
	folded := FoldName(strings.TrimSpace(raw))
	for _, kind := range AllSections() {
		if kind.Key() == folded {
			return kind, nil
		}
	}
	return 0, WrapError(ErrInvalidInput, "parse section kind", fmt.Errorf("unknown section %q", raw))
}

// FoldName lowercases s and removes combining marks.
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

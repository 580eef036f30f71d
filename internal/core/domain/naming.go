package domain

import (
	"errors"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	MarkdownExt = ".md"

	assessmentSuffix = " - assessment"
)

// derivedSuffixes mark blobs produced by a pipeline stage. Matching is done on the
// NFC-normalized, lowercased base name.
var derivedSuffixes = []string{
	" - synthèse",
	" - essai",
	" - traduction",
	assessmentSuffix,
}

// BaseName strips the last dot-delimited extension.
func BaseName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name
	}
	return name[:idx]
}

// Ext returns the lowercased extension without the dot.
func Ext(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// IsDerivedArtifact reports whether name denotes a section, assessment or report
// blob. It guards every folder re-scan against re-processing. Names from
// macOS uploads often arrive decomposed (NFD), so they are composed first.
func IsDerivedArtifact(name string) bool {
	base := strings.ToLower(norm.NFC.String(BaseName(name)))
	for _, suffix := range derivedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// NormalizedName is the markdown blob name for a raw upload ("Alice.docx" -> "Alice.md").
func NormalizedName(rawName string) string {
	return BaseName(rawName) + MarkdownExt
}

// SectionBlobName keeps the full markdown name: "Alice.md - Synthèse.md".
func SectionBlobName(markdownName string, kind SectionKind) string {
	return markdownName + " - " + kind.DisplayName() + MarkdownExt
}

func SectionAssessmentName(originalName string, kind SectionKind) string {
	return BaseName(originalName) + " - " + kind.DisplayName() + assessmentSuffix + MarkdownExt
}

func ReportName(originalName string) string {
	return BaseName(originalName) + assessmentSuffix + MarkdownExt
}

func ReportDocumentName(originalName string) string {
	return BaseName(originalName) + assessmentSuffix + ".docx"
}

func GradebookName(batch string) string {
	return batch + " - grades.xlsx"
}

// ValidateFolderName rejects names that cannot address a folder.
func ValidateFolderName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return NewValidationError("folder name", FieldError{Field: "name", Message: "must not be empty"})
	case trimmed == "." || trimmed == "..":
		return NewValidationError("folder name", FieldError{Field: "name", Message: "reserved name"})
	}
	return nil
}

// ValidateBlobName rejects names that would escape their folder.
func ValidateBlobName(name string) error {
	if err := ValidateFolderName(name); err != nil {
		return err
	}
	if path.Clean("/"+name) == "/" {
		return WrapError(ErrInvalidInput, "blob name", errors.New("empty after cleaning"))
	}
	return nil
}

package domain

import "testing"

func TestIsDerivedArtifact(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{name: "Alice.md", want: false},
		{name: "Alice.docx", want: false},
		{name: "Alice.md - Synthèse.md", want: true},
		{name: "Alice.md - Essai.md", want: true},
		{name: "Alice.md - Traduction.md", want: true},
		{name: "Alice - assessment.md", want: true},
		{name: "Alice - Synthèse - assessment.md", want: true},
		{name: "ALICE - ASSESSMENT.DOCX", want: true},
		{name: "Essai de Alice.md", want: false},
		{name: "Alice - essais.md", want: false},
		{name: "Alice - synthese.md", want: false},
		{name: "Alice.md - Synthe\u0300se.md", want: true},
		{name: "ALICE.MD - SYNTHE\u0300SE.MD", want: true},
		{name: "Alice.md - Synthe\u0301se.md", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDerivedArtifact(tc.name); got != tc.want {
				t.Fatalf("IsDerivedArtifact(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestGeneratedNamesAreDerivedArtifacts(t *testing.T) {
	original := "Alice Martin.docx"
	md := NormalizedName(original)
	if IsDerivedArtifact(md) {
		t.Fatalf("normalized name %q must not be a derived artifact", md)
	}

	generated := []string{ReportName(original), ReportDocumentName(original)}
	for _, kind := range AllSections() {
		generated = append(generated, SectionBlobName(md, kind), SectionAssessmentName(original, kind))
	}
	for _, name := range generated {
		if !IsDerivedArtifact(name) {
			t.Fatalf("generated name %q is not recognised as derived", name)
		}
	}
}

func TestNames(t *testing.T) {
	if got := NormalizedName("Alice.docx"); got != "Alice.md" {
		t.Fatalf("NormalizedName = %q", got)
	}
	if got := NormalizedName("README"); got != "README.md" {
		t.Fatalf("NormalizedName without ext = %q", got)
	}
	if got := SectionBlobName("Alice.md", SectionSynthese); got != "Alice.md - Synthèse.md" {
		t.Fatalf("SectionBlobName = %q", got)
	}
	if got := SectionAssessmentName("Alice.md", SectionEssai); got != "Alice - Essai - assessment.md" {
		t.Fatalf("SectionAssessmentName = %q", got)
	}
	if got := ReportName("Alice.md"); got != "Alice - assessment.md" {
		t.Fatalf("ReportName = %q", got)
	}
	if got := GradebookName("Mock Exams Feb 2025"); got != "Mock Exams Feb 2025 - grades.xlsx" {
		t.Fatalf("GradebookName = %q", got)
	}
}

func TestValidateFolderName(t *testing.T) {
	for _, bad := range []string{"", "  ", ".", ".."} {
		if err := ValidateFolderName(bad); !IsKind(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", bad, err)
		}
	}
	if err := ValidateFolderName("Mock Exams Feb 2025"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// composeReport renders the combined markdown assessment of a graded exam.
func composeReport(g domain.GradedExam) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Assessment of mock exam for %s on %s\n\n", g.Exam.Name, g.Exam.Date)
	fmt.Fprintf(&b, "**Final score: %.2f / %d**\n\n", g.FinalScore, domain.MaxSectionScore)

	for _, kind := range domain.AllSections() {
		a, ok := g.Assessments[kind]
		if !ok {
			a = domain.FailedAssessment(kind, nil)
		}
		fmt.Fprintf(&b, "## %s\n\n", kind.DisplayName())
		fmt.Fprintf(&b, "Score: %d / %d\n\n", a.Score, domain.MaxSectionScore)
		if line := distributionLine(a.ErrorDistribution); line != "" {
			b.WriteString(line)
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(a.Feedback))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func distributionLine(dist map[string]int) string {
	if len(dist) == 0 {
		return ""
	}
	categories := make([]string, 0, len(dist))
	for category := range dist {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	parts := make([]string, 0, len(categories))
	for _, category := range categories {
		parts = append(parts, fmt.Sprintf("%s: %d", category, dist[category]))
	}
	return "Errors: " + strings.Join(parts, ", ")
}

func emailSubject(exam domain.MockExam) string {
	return fmt.Sprintf("Mock Exam grading results for %s on %s", exam.Name, exam.Date)
}

func emailBody(exam domain.MockExam, link string) string {
	return fmt.Sprintf(
		"Please find attached the mock exam for %s on %s.\n\n"+
			"The file can be found here: %s\n\n"+
			"Yours truly,\n\nThe Grading Assistant",
		exam.Name, exam.Date, link,
	)
}

func gradeRow(g domain.GradedExam) domain.GradeRow {
	return domain.GradeRow{
		Student:    g.Exam.Name,
		Date:       g.Exam.Date,
		File:       g.Exam.OriginalFileName,
		Scores:     g.Scores(),
		FinalScore: g.FinalScore,
		Complete:   g.Complete(),
	}
}

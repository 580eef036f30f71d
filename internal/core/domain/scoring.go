package domain

// FinalScore is the weighted sum of section scores, each weight a percentage.
// Weights are validated upstream by Settings.Validate.
func FinalScore(weights map[SectionKind]int, scores map[SectionKind]int) float64 {
	var total float64
	for _, kind := range AllSections() {
		total += float64(scores[kind]) * float64(weights[kind]) / 100
	}
	return total
}

package openai

func buildExtractionSystemPrompt(instruction string) string {
	return instruction + `

Answer with a single JSON object matching the provided schema.
Copy student text verbatim, keeping its markdown. Use an empty string for any part that is absent.`
}

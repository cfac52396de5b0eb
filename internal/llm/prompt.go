package llm

import "fmt"

// BuildUserPrompt embeds the first maxRunes of context, followed by "...",
// and the question.
func BuildUserPrompt(context, question string, maxRunes int) string {
	r := []rune(context)
	if maxRunes > 0 && len(r) > maxRunes {
		r = r[:maxRunes]
	}
	return fmt.Sprintf("Com base neste contexto: '%s...', responda: %s", string(r), question)
}

package answer

import (
	"fmt"
	"strings"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
)

const systemPrompt = `You are CareBuddy, an assistant that answers patient questions using only the documents their care team provided.

Follow these rules:
1. If the excerpts directly address the question, answer from them and cite the excerpt numbers you used, like [1].
2. If the excerpts are only tangentially related, say plainly that no direct information was found in the documents, then describe what related information they contain.
3. If nothing in the excerpts is relevant, reply exactly with: %s

Never give medical advice that is not in the excerpts. Keep answers short and clear, and suggest contacting the care team for anything the documents do not cover.`

const directAssessment = "Assessment: the excerpts below directly address the question. Follow rule 1."

const partialAssessment = "Assessment: the excerpts below are only tangentially related to the question. Follow rule 2."

// buildMessages assembles the conversation sent to the model: a system
// message carrying the rules, the assessment and the numbered excerpts,
// then the prior turns and the question.
func buildMessages(query string, outcome Outcome, sources []*core.RetrievalResult, history []core.Turn, notFound string) []ai.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, systemPrompt, notFound)
	sb.WriteString("\n\n")
	if outcome == Direct {
		sb.WriteString(directAssessment)
	} else {
		sb.WriteString(partialAssessment)
	}
	sb.WriteString("\n\nExcerpts:\n")
	for n, source := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", n+1, excerpt(source.Chunk.Text))
	}

	messages := make([]ai.Message, 0, 2+2*len(history))
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: strings.TrimRight(sb.String(), "\n")})
	for _, turn := range history {
		if strings.TrimSpace(turn.User) != "" {
			messages = append(messages, ai.Message{Role: ai.RoleUser, Content: turn.User})
		}
		if strings.TrimSpace(turn.Assistant) != "" {
			messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: turn.Assistant})
		}
	}
	return append(messages, ai.Message{Role: ai.RoleUser, Content: query})
}

// excerpt flattens chunk text onto a single line.
func excerpt(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// recentTurns returns at most limit of the latest turns.
func recentTurns(history []core.Turn, limit int) []core.Turn {
	if limit <= 0 {
		return nil
	}
	if len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

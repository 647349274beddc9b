package composer

import (
	"strings"

	"github.com/kalambet/ragdesk/internal/engine"
	"github.com/kalambet/ragdesk/internal/retrieval"
	"github.com/kalambet/ragdesk/internal/storage"
)

const defaultMaxContextTokens = 4000

// NoAnswer is the reply the assistant is told to give when the context does
// not cover the question.
const NoAnswer = "I don't know."

const systemTemplate = `You are an assistant specialized in analyzing and improving website performance. Your goal is to provide accurate, practical, and performance-driven answers.
Use the following retrieved context (such as PageSpeed Insights data or audit results) to answer the user's question.
If the context lacks sufficient information, respond with "` + NoAnswer + `" Do not make up answers or provide unverified information.

Guidelines:
1. Extract relevant performance insights from the context to form a helpful and actionable response.
2. Maintain a clear, professional, and user-focused tone.
3. If the question is unclear or needs more detail, ask for clarification politely.
4. Prioritize recommendations that follow web performance best practices (e.g., optimizing load times, reducing blocking resources, improving visual stability).

Retrieved context:
{context}

User's question:
{question}

Your response:`

// Composer assembles the chat messages for one answer: a system message
// holding the instructions and retrieved context, the prior conversation,
// and the question as the final user turn.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the message list. history is the stored session log; a
// trailing human message equal to question is treated as the current turn
// and not repeated.
func (c *Composer) Compose(question string, chunks []retrieval.ScoredChunk, history []storage.Message) []engine.Message {
	system := strings.NewReplacer(
		"{context}", c.buildContext(chunks),
		"{question}", question,
	).Replace(systemTemplate)

	if n := len(history); n > 0 && history[n-1].Role == storage.RoleHuman && history[n-1].Content == question {
		history = history[:n-1]
	}

	msgs := make([]engine.Message, 0, len(history)+2)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: system})
	for _, h := range history {
		msgs = append(msgs, engine.Message{Role: chatRole(h.Role), Content: h.Content})
	}
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: question})
	return msgs
}

// buildContext joins chunk texts in rank order, skipping any chunk that
// would push the total past MaxContextTokens.
func (c *Composer) buildContext(chunks []retrieval.ScoredChunk) string {
	remaining := c.MaxContextTokens
	var selected []string
	for _, ch := range chunks {
		tokens := EstimateTokens(ch.Text)
		if tokens > remaining {
			continue
		}
		selected = append(selected, ch.Text)
		remaining -= tokens
	}
	return strings.Join(selected, "\n\n")
}

func chatRole(stored string) string {
	if stored == storage.RoleAI {
		return engine.RoleAssistant
	}
	return engine.RoleUser
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

package recommend

import (
	"strconv"
	"strings"

	"github.com/kalambet/ragdesk/internal/engine"
)

const promptTemplate = `You are an academic advisor. A student just completed the course "{course}" with a score of {marks}%. Recommend three specific next-step university or online courses that are a good fit given their performance.
In the output only provide the course names, separated by commas.
Do not include any other text or explanations.
Example output:
"Advanced Physics, Data Science Fundamentals, Machine Learning Basics"`

// BuildPrompt constructs the chat messages for a recommendation request.
func BuildPrompt(course string, marks float64) []engine.Message {
	content := strings.NewReplacer(
		"{course}", course,
		"{marks}", strconv.FormatFloat(marks, 'f', -1, 64),
	).Replace(promptTemplate)

	return []engine.Message{
		{Role: engine.RoleUser, Content: content},
	}
}

// ParseList splits a comma-separated model reply into course names,
// stripping surrounding quotes and whitespace.
func ParseList(raw string) []string {
	raw = strings.Trim(strings.TrimSpace(raw), `"'`)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"'.`)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlprompt/sqlprompt/internal/llm"
)

const generateInstruction = `You are a %[1]s expert.
Use the schema below to write a valid SQL query for the user's prompt.
Make sure the query works on older %[1]s versions.
Avoid using LIMIT in subqueries with IN or ANY. Prefer JOINs instead.
Return only the SQL query, with no explanation.

Schema:
%[2]s
`

type Generator struct {
	LLM llm.Client
}

// Generate asks for one statement in the given dialect. The reply is fence-stripped
// but otherwise returned as written.
func (g *Generator) Generate(ctx context.Context, prompt string, schema Schema, dialect string) (string, error) {
	if strings.TrimSpace(dialect) == "" {
		dialect = "MySQL"
	}
	text, err := g.LLM.Complete(ctx, llm.Seeded(GenerateInstruction(dialect, schema), prompt))
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	return StripCodeFences(text), nil
}

func GenerateInstruction(dialect string, schema Schema) string {
	return fmt.Sprintf(generateInstruction, dialect, schema.String())
}

// StripCodeFences removes Markdown fence lines from a fenced reply and trims the result.
// Applying it twice gives the same output as applying it once.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

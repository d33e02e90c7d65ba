package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlprompt/sqlprompt/internal/llm"
)

const extractInstruction = "Extract only the table names used in the following prompt. Return a comma-separated list. No explanation."

var ErrNoTables = errors.New("no table names extracted")

// Extractor guesses table names from the raw prompt before any schema is known.
type Extractor struct {
	LLM llm.Client
}

func (e *Extractor) Extract(ctx context.Context, prompt string) ([]string, error) {
	text, err := e.LLM.Complete(ctx, llm.Seeded(extractInstruction, prompt))
	if err != nil {
		return nil, fmt.Errorf("extract table names: %w", err)
	}
	tables := ParseTableList(text)
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	return tables, nil
}

// ParseTableList splits a comma-separated reply, trimming entries and dropping empty ones.
func ParseTableList(text string) []string {
	tables := make([]string, 0)
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tables = append(tables, part)
	}
	return tables
}

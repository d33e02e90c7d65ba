// Package llm wraps the text-generation providers used to turn prompts into table lists
// and SQL. A Client is built once at startup and shared by all requests.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Acknowledgement is the model turn that closes a seeded instruction exchange.
const Acknowledgement = "Okay."

type Turn struct {
	Role Role
	Text string
}

// Conversation is a seed exchange followed by the prompt to answer.
type Conversation struct {
	Seed   []Turn
	Prompt string
}

// Seeded frames instruction as a completed user/model exchange and asks prompt next.
func Seeded(instruction, prompt string) Conversation {
	return Conversation{
		Seed: []Turn{
			{Role: RoleUser, Text: instruction},
			{Role: RoleModel, Text: Acknowledgement},
		},
		Prompt: prompt,
	}
}

type Client interface {
	Complete(ctx context.Context, conv Conversation) (string, error)
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClient(cfg)
	case "anthropic":
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

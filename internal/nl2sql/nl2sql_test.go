package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sqlprompt/sqlprompt/internal/llm"
)

type fakeLLM struct {
	calls []llm.Conversation
	reply string
	err   error
}

func (f *fakeLLM) Complete(_ context.Context, conv llm.Conversation) (string, error) {
	f.calls = append(f.calls, conv)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestParseTableList(t *testing.T) {
	got := ParseTableList(" users , orders,, users ,\n")
	want := []string{"users", "orders", "users"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ParseTableList() = %#v", got)
	}
	if got := ParseTableList(" , ,  "); len(got) != 0 {
		t.Fatalf("ParseTableList() = %#v, want empty", got)
	}
}

func TestExtractSendsSingleSeededCall(t *testing.T) {
	fake := &fakeLLM{reply: "users"}
	tables, err := (&Extractor{LLM: fake}).Extract(context.Background(), "show all users")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(tables) != 1 || tables[0] != "users" {
		t.Fatalf("tables = %#v", tables)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("calls = %d", len(fake.calls))
	}
	call := fake.calls[0]
	if call.Prompt != "show all users" {
		t.Fatalf("prompt = %q", call.Prompt)
	}
	if len(call.Seed) != 2 || call.Seed[0].Text != extractInstruction || call.Seed[1].Text != llm.Acknowledgement {
		t.Fatalf("seed = %#v", call.Seed)
	}
}

func TestExtractRejectsEmptyReply(t *testing.T) {
	_, err := (&Extractor{LLM: &fakeLLM{reply: "  ,  "}}).Extract(context.Background(), "hello")
	if !errors.Is(err, ErrNoTables) {
		t.Fatalf("Extract() error = %v, want ErrNoTables", err)
	}
}

func TestExtractWrapsLLMFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := (&Extractor{LLM: &fakeLLM{err: boom}}).Extract(context.Background(), "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("Extract() error = %v", err)
	}
	if errors.Is(err, ErrNoTables) {
		t.Fatal("LLM failure must not look like an empty extraction")
	}
}

func TestSchemaString(t *testing.T) {
	schema := Schema{
		{Name: "users", Columns: []Column{{Name: "id", Type: "int"}, {Name: "name", Type: "varchar(50)"}}},
		{Name: "orders", Columns: []Column{{Name: "id", Type: "int"}}},
	}
	want := "users(id int, name varchar(50))\norders(id int)"
	if got := schema.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestGenerateEmbedsSchemaAndStripsFences(t *testing.T) {
	fake := &fakeLLM{reply: "```sql\nDELETE FROM users WHERE id=1\n```"}
	schema := Schema{{Name: "users", Columns: []Column{{Name: "id", Type: "int"}}}}

	sqlText, err := (&Generator{LLM: fake}).Generate(context.Background(), "delete user 1", schema, "MySQL")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sqlText != "DELETE FROM users WHERE id=1" {
		t.Fatalf("Generate() = %q", sqlText)
	}
	instruction := fake.calls[0].Seed[0].Text
	for _, want := range []string{"You are a MySQL expert.", "older MySQL versions", "Avoid using LIMIT in subqueries with IN or ANY", "Schema:\nusers(id int)"} {
		if !strings.Contains(instruction, want) {
			t.Fatalf("instruction missing %q:\n%s", want, instruction)
		}
	}
	if fake.calls[0].Prompt != "delete user 1" {
		t.Fatalf("prompt = %q", fake.calls[0].Prompt)
	}
}

func TestGenerateWrapsLLMFailure(t *testing.T) {
	boom := errors.New("model overloaded")
	_, err := (&Generator{LLM: &fakeLLM{err: boom}}).Generate(context.Background(), "x", nil, "")
	if !errors.Is(err, boom) {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1\n```":         "SELECT 1",
		"```\nSELECT 1;\n```":           "SELECT 1;",
		"  SELECT * FROM users  \n":     "SELECT * FROM users",
		"```sql\nSELECT a\nFROM b\n```": "SELECT a\nFROM b",
		"":                              "",
	}
	for input, want := range cases {
		got := StripCodeFences(input)
		if got != want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", input, got, want)
		}
		if again := StripCodeFences(got); again != got {
			t.Fatalf("StripCodeFences not idempotent for %q: %q", input, again)
		}
	}
}

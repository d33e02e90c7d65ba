package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrStatementNotAllowed = errors.New("statement not allowed")

// Guard screens generated statements by their leading keyword before they run.
// An empty allowlist permits every kind that is not denied. Text holding more than one
// statement is always rejected, even by a nil Guard, since drivers run every statement
// they are handed.
type Guard struct {
	allowed map[string]struct{}
	denied  map[string]struct{}
}

func NewGuard(allowed, denied []string) *Guard {
	return &Guard{allowed: keywordSet(allowed), denied: keywordSet(denied)}
}

func (g *Guard) Check(sqlText string) error {
	if CountStatements(sqlText) > 1 {
		return fmt.Errorf("%w: multiple statements", ErrStatementNotAllowed)
	}
	if g == nil {
		return nil
	}
	kind := StatementKind(sqlText)
	if kind == "" {
		return fmt.Errorf("%w: empty statement", ErrStatementNotAllowed)
	}
	if _, denied := g.denied[kind]; denied {
		return fmt.Errorf("%w: %s", ErrStatementNotAllowed, kind)
	}
	if len(g.allowed) > 0 {
		if _, ok := g.allowed[kind]; !ok {
			return fmt.Errorf("%w: %s", ErrStatementNotAllowed, kind)
		}
	}
	return nil
}

// StatementKind returns the first keyword of the statement in lower case, skipping
// leading whitespace, opening parentheses and SQL comments.
func StatementKind(sqlText string) string {
	text := skipLeadingNoise(sqlText)
	end := strings.IndexFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		end = len(text)
	}
	return strings.ToLower(text[:end])
}

func skipLeadingNoise(text string) string {
	for {
		text = strings.TrimLeftFunc(text, func(r rune) bool {
			return unicode.IsSpace(r) || r == '('
		})
		switch {
		case strings.HasPrefix(text, "--"), strings.HasPrefix(text, "#"):
			newline := strings.IndexByte(text, '\n')
			if newline < 0 {
				return ""
			}
			text = text[newline+1:]
		case strings.HasPrefix(text, "/*"):
			closing := strings.Index(text, "*/")
			if closing < 0 {
				return ""
			}
			text = text[closing+2:]
		default:
			return text
		}
	}
}

// lexRules describes how a dialect hides a semicolon inside a token.
type lexRules struct {
	backslashEscapes   bool
	hashComments       bool
	backtickQuotes     bool
	dashNeedsSpace     bool
	executableComments bool
	nestedComments     bool
	dollarQuotes       bool
}

var (
	mysqlLex    = lexRules{backslashEscapes: true, hashComments: true, backtickQuotes: true, dashNeedsSpace: true, executableComments: true}
	standardLex = lexRules{nestedComments: true, dollarQuotes: true}
)

// CountStatements returns how many non-empty statements sqlText splits into on
// semicolons outside quotes and comments. The text is read under both MySQL and
// standard lexing rules and the larger count wins, so a separator visible to either
// dialect is counted.
func CountStatements(sqlText string) int {
	return max(countStatements(sqlText, mysqlLex), countStatements(sqlText, standardLex))
}

func countStatements(text string, rules lexRules) int {
	count := 0
	hasCode := false
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ';':
			if hasCode {
				count++
			}
			hasCode = false
			i++
		case c == '-' && strings.HasPrefix(text[i:], "--") && (!rules.dashNeedsSpace || i+2 >= len(text) || isSpaceByte(text[i+2])):
			i = skipLine(text, i)
		case c == '#' && rules.hashComments:
			i = skipLine(text, i)
		case c == '/' && strings.HasPrefix(text[i:], "/*") && !(rules.executableComments && strings.HasPrefix(text[i:], "/*!")):
			i = skipBlockComment(text, i, rules.nestedComments)
		case c == '\'' || c == '"' || (c == '`' && rules.backtickQuotes):
			hasCode = true
			i = skipQuoted(text, i, c, rules.backslashEscapes && c != '`')
		case c == '$' && rules.dollarQuotes:
			hasCode = true
			i = skipDollarQuoted(text, i)
		case isSpaceByte(c):
			i++
		default:
			hasCode = true
			i++
		}
	}
	if hasCode {
		count++
	}
	return count
}

func skipLine(text string, i int) int {
	newline := strings.IndexByte(text[i:], '\n')
	if newline < 0 {
		return len(text)
	}
	return i + newline + 1
}

func skipBlockComment(text string, i int, nested bool) int {
	depth := 1
	for j := i + 2; j < len(text); {
		switch {
		case nested && strings.HasPrefix(text[j:], "/*"):
			depth++
			j += 2
		case strings.HasPrefix(text[j:], "*/"):
			depth--
			j += 2
			if depth == 0 {
				return j
			}
		default:
			j++
		}
	}
	return len(text)
}

// skipQuoted returns the index just past the closing quote. A doubled quote is an
// escaped quote.
func skipQuoted(text string, i int, quote byte, backslashEscapes bool) int {
	for j := i + 1; j < len(text); {
		switch c := text[j]; {
		case backslashEscapes && c == '\\':
			j += 2
		case c == quote && j+1 < len(text) && text[j+1] == quote:
			j += 2
		case c == quote:
			return j + 1
		default:
			j++
		}
	}
	return len(text)
}

// skipDollarQuoted skips a $tag$...$tag$ body. A lone $ or a positional $1 is one byte.
func skipDollarQuoted(text string, i int) int {
	j := i + 1
	for j < len(text) && (text[j] == '_' || isASCIILetter(text[j]) || (j > i+1 && text[j] >= '0' && text[j] <= '9')) {
		j++
	}
	if j >= len(text) || text[j] != '$' {
		return i + 1
	}
	tag := text[i : j+1]
	closing := strings.Index(text[j+1:], tag)
	if closing < 0 {
		return len(text)
	}
	return j + 1 + closing + len(tag)
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func keywordSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			set[value] = struct{}{}
		}
	}
	return set
}

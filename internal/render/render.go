// Package render turns catalog SQL text plus parameter values into a
// statement. Literal rendering reproduces the display text shown to users;
// Bind rendering produces driver placeholders for execution.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xaenox/pocheck/internal/params"
)

// Statement is rendered SQL plus its bind arguments, if any.
type Statement struct {
	SQL  string
	Args []any
}

// Renderer substitutes parameter values into SQL text.
type Renderer interface {
	Render(sqlText string, values []params.Pair) Statement
}

// Literal replaces every occurrence of a non-empty token with '<value>'.
// Values are inserted verbatim: quotes are not escaped, so the result is for
// display and must not be executed.
type Literal struct{}

func (Literal) Render(sqlText string, values []params.Pair) Statement {
	for _, p := range values {
		if p.Value == "" {
			continue
		}
		sqlText = strings.ReplaceAll(sqlText, p.Token, "'"+p.Value+"'")
	}
	return Statement{SQL: sqlText}
}

// Bind replaces each occurrence of a non-empty token with a positional
// placeholder and collects the value as an argument, in text order.
type Bind struct {
	Placeholder func(n int) string
}

// Dollar numbers placeholders $1, $2, ... (postgres).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question uses ? for every placeholder (mysql, sqlite).
func Question(int) string { return "?" }

func (b Bind) Render(sqlText string, values []params.Pair) Statement {
	placeholder := b.Placeholder
	if placeholder == nil {
		placeholder = Question
	}

	var (
		out  strings.Builder
		args []any
	)
	rest := sqlText
	for {
		idx, pair := nextToken(rest, values)
		if idx < 0 {
			out.WriteString(rest)
			break
		}
		args = append(args, pair.Value)
		out.WriteString(rest[:idx])
		out.WriteString(placeholder(len(args)))
		rest = rest[idx+len(pair.Token):]
	}
	return Statement{SQL: out.String(), Args: args}
}

func nextToken(s string, values []params.Pair) (int, params.Pair) {
	best := -1
	var found params.Pair
	for _, p := range values {
		if p.Value == "" {
			continue
		}
		if i := strings.Index(s, p.Token); i >= 0 && (best < 0 || i < best) {
			best, found = i, p
		}
	}
	return best, found
}

var tokenPattern = regexp.MustCompile(`@[A-Za-z]+`)

// Unresolved lists the vocabulary tokens still present in sqlText, in order
// of first appearance.
func Unresolved(sqlText string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range tokenPattern.FindAllString(sqlText, -1) {
		if params.IsToken(m) && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Summary is the Markdown table of every non-empty parameter.
func Summary(values []params.Pair) string {
	var b strings.Builder
	b.WriteString("| Filter | Active Value |\n| :--- | :--- |")
	for _, p := range values {
		if p.Value == "" {
			continue
		}
		fmt.Fprintf(&b, "\n| %s | %s |", p.Token, p.Value)
	}
	return b.String()
}

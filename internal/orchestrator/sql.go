package orchestrator

import "regexp"

var sqlBlock = regexp.MustCompile("```sql\\n([\\s\\S]*?)\\n```")

// ExtractSQL returns the body of the first ```sql fenced block in text.
// Later blocks are ignored.
func ExtractSQL(text string) (string, bool) {
	m := sqlBlock.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/orchestrator"
	"github.com/xaenox/pocheck/internal/params"
)

const helpText = `Available commands:
/library - List the query library
/run <id> - Run a library item, e.g. /run PO_HDR
/set <param> <value> - Set a filter (id, cc, supplier, source, from, to, user)
/unset <param> - Clear a filter
/params - Show active filters
/reset - Clear all filters
/preset <name> - Apply a date range (last_week, last_30, last_90, last_quarter, last_year)
/ai on|off - Switch between the LLM gateway and master templates
/clear - Clear the chat
/history - Show the chat transcript
/profile - Show your analyst profile
/stop - End the session and forget its filters and transcript

Any other text is sent to the assistant.`

const timeLayout = "15:04"

// maxMessageLength is the Telegram limit on message text, in characters.
const maxMessageLength = 4096

const codeFence = "```sql\n%s\n```"

// Characters reserved by Telegram MarkdownV2.
var markdownSpecial = []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

func escapeMarkdown(text string) string {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	for _, char := range markdownSpecial {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

// escapeCode escapes text placed inside a MarkdownV2 pre block.
func escapeCode(text string) string {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	return strings.ReplaceAll(escaped, "`", "\\`")
}

// splitMessage cuts text into chunks of at most limit runes, breaking after
// a newline in the second half of a chunk when there is one.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if chunk := strings.TrimRight(string(runes[:cut]), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return append(chunks, string(runes))
}

func engineName(aiEnabled bool) string {
	if aiEnabled {
		return "LLM gateway"
	}
	return "master templates"
}

func footer(msg models.Message) string {
	source := "LLM Synthetic"
	if msg.FromTemplate() {
		source = "Master Template"
	}
	return fmt.Sprintf("%s (%s)", msg.Timestamp.Format(timeLayout), source)
}

func formatReply(msg models.Message) string {
	return msg.Content + "\n\n" + footer(msg)
}

func formatLibrary(categories []catalog.Category) string {
	var sb strings.Builder
	sb.WriteString("*Query library*\n")
	for _, c := range categories {
		sb.WriteString(fmt.Sprintf("\n%s *%s*\n", c.Icon, escapeMarkdown(c.Name)))
		for _, item := range c.Items {
			sb.WriteString(fmt.Sprintf("`%s` %s\n", item.ID, escapeMarkdown(item.Question)))
		}
	}
	sb.WriteString("\n" + escapeMarkdown("Run one with /run <id>."))
	return sb.String()
}

func formatParams(s *orchestrator.Session) string {
	var sb strings.Builder
	sb.WriteString("Active filters (engine: " + engineName(s.AIEnabled()) + ")\n")
	for _, p := range s.Params().Snapshot() {
		value := p.Value
		if value == "" {
			value = "-"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", p.Token, value))
	}
	if preset := s.Params().Preset(); preset != "" {
		sb.WriteString(fmt.Sprintf("%s: %s\n", params.DatePreset, preset))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHistory(messages []models.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		who := "You"
		if msg.Role == models.RoleAssistant {
			who = "POCheck"
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format(timeLayout), who, msg.Content))
	}
	return sb.String()
}

func formatProfile(p models.UserProfile) string {
	return fmt.Sprintf("%s (%s)\n%s, %s\n%s\nLocation: %s\nLast login: %s",
		p.FullName, p.UserID, p.Role, p.Department, p.Email, p.Location, p.LastLogin)
}

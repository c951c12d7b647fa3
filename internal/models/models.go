package models

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata carries the optional extras attached to an assistant message.
type Metadata struct {
	SQL   string `json:"sql,omitempty"`
	IsFAQ bool   `json:"isFaq,omitempty"`
}

// Message is a single transcript entry. It is never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// SQL returns the attached SQL text, if any.
func (m Message) SQL() string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.SQL
}

// FromTemplate reports whether the message was produced by a master template.
func (m Message) FromTemplate() bool {
	return m.Metadata != nil && m.Metadata.IsFAQ
}

// Turn is a message reduced to what the chat gateway needs.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a gateway chat call.
type ChatRequest struct {
	Message string            `json:"message"`
	History []Turn            `json:"history"`
	Context map[string]string `json:"context"`
}

// ChatResponse is the body returned by the gateway chat endpoint.
type ChatResponse struct {
	Content string `json:"content"`
}

// UserProfile describes the signed-in analyst.
type UserProfile struct {
	UserID     string `json:"user_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	LastLogin  string `json:"last_login"`
	Location   string `json:"location"`
}

// QueryRequest asks the gateway to execute a template or raw statement.
type QueryRequest struct {
	TemplateID string            `json:"template_id,omitempty"`
	SQL        string            `json:"sql,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// QueryResult is a tabular answer from the query endpoint.
type QueryResult struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

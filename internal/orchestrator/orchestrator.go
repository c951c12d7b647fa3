// Package orchestrator routes a user action either to a local master
// template or to the remote chat gateway and records both sides of the
// exchange in the session transcript.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/params"
	"github.com/xaenox/pocheck/internal/render"
	"github.com/xaenox/pocheck/internal/transcript"
)

const (
	WelcomeText = "Welcome to POCheck Workspace. I can use validated Teradata templates or generate custom SQL via your LLM. Set your parameters with /set to begin."

	// GatewayErrorText replaces the answer when the gateway call fails.
	GatewayErrorText = "Error: Could not reach the LLM gateway. Please ensure the backend is running."

	EmptyAnswerText = "I'm sorry, I couldn't process that request."
)

var (
	ErrBusy       = errors.New("a request is already in progress")
	ErrEmptyInput = errors.New("empty input")
)

// Gateway answers free-form requests.
type Gateway interface {
	Chat(ctx context.Context, req models.ChatRequest) (string, error)
}

// UnknownTemplatePolicy decides what happens when a template id is not in
// the catalog.
type UnknownTemplatePolicy string

const (
	// FallbackToGateway sends the utterance to the gateway as free text.
	FallbackToGateway UnknownTemplatePolicy = "fallback"
	// RejectUnknown answers with a message naming the unknown id.
	RejectUnknown UnknownTemplatePolicy = "reject"
)

// ParsePolicy accepts "fallback", "reject" or "" (fallback).
func ParsePolicy(s string) (UnknownTemplatePolicy, error) {
	switch UnknownTemplatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackToGateway:
		return FallbackToGateway, nil
	case RejectUnknown:
		return RejectUnknown, nil
	}
	return "", fmt.Errorf("unknown template policy %q", s)
}

type Option func(*Session)

func WithRenderer(r render.Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

func WithUnknownTemplatePolicy(p UnknownTemplatePolicy) Option {
	return func(s *Session) { s.policy = p }
}

func WithAIEnabled(enabled bool) Option {
	return func(s *Session) { s.aiEnabled.Store(enabled) }
}

// Session is the state of one conversation. Parameters are written by the
// front-end setters; the transcript is written only by Submit and Clear.
type Session struct {
	catalog    *catalog.Catalog
	gateway    Gateway
	renderer   render.Renderer
	policy     UnknownTemplatePolicy
	params     *params.Set
	transcript *transcript.Transcript
	aiEnabled  atomic.Bool
	busy       atomic.Bool
	logger     *zap.Logger
}

func NewSession(cat *catalog.Catalog, gw Gateway, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		catalog:  cat,
		gateway:  gw,
		renderer: render.Literal{},
		policy:   FallbackToGateway,
		params:   params.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.transcript = transcript.New(models.Message{
		ID:        newID(),
		Role:      models.RoleAssistant,
		Content:   WelcomeText,
		Timestamp: time.Now(),
	})
	return s
}

func (s *Session) Params() *params.Set { return s.params }

func (s *Session) Messages() []models.Message { return s.transcript.Messages() }

func (s *Session) AIEnabled() bool { return s.aiEnabled.Load() }

func (s *Session) SetAIEnabled(enabled bool) { s.aiEnabled.Store(enabled) }

// Busy reports whether a request is awaiting its answer.
func (s *Session) Busy() bool { return s.busy.Load() }

// Clear resets the transcript to the welcome message.
func (s *Session) Clear() { s.transcript.Clear() }

// Select runs a library item: its canned prompt is submitted together with
// its template id. Ids missing from the library are submitted as-is and
// follow the unknown template policy.
func (s *Session) Select(ctx context.Context, itemID string) (models.Message, error) {
	prompt := "Run template " + itemID
	if item, ok := s.catalog.Item(itemID); ok {
		prompt = item.Prompt
	}
	return s.Submit(ctx, prompt, itemID)
}

// Submit appends the user's message, produces exactly one assistant message
// and returns it. While a call is pending further submissions fail with
// ErrBusy and leave the transcript untouched.
func (s *Session) Submit(ctx context.Context, text, templateID string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		return models.Message{}, ErrBusy
	}
	defer s.busy.Store(false)

	history := s.transcript.History()
	s.transcript.Append(models.Message{
		ID:        newID(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})

	var content string
	meta := &models.Metadata{}
	tpl, known := s.catalog.Lookup(templateID)
	switch {
	case templateID != "" && known && !s.AIEnabled():
		content, meta.SQL = s.renderTemplate(tpl)
		meta.IsFAQ = true
	case templateID != "" && !known && s.policy == RejectUnknown && !s.AIEnabled():
		s.logger.Info("Rejected unknown template", zap.String("template_id", templateID))
		content = fmt.Sprintf("Template **%s** is not in the query library.", templateID)
	default:
		content = s.ask(ctx, text, history)
		if sql, ok := ExtractSQL(content); ok {
			meta.SQL = sql
		}
	}

	reply := models.Message{
		ID:        newID(),
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  meta,
	}
	s.transcript.Append(reply)
	s.logger.Debug("Request answered",
		zap.String("template_id", templateID),
		zap.Bool("from_template", meta.IsFAQ),
		zap.Int("messages", s.transcript.Len()))
	return reply, nil
}

func (s *Session) renderTemplate(tpl catalog.Template) (content, sql string) {
	values := s.params.Snapshot()
	stmt := s.renderer.Render(tpl.SQL, values)
	content = fmt.Sprintf("I've fetched data using the **%s** master template.\n\n%s\n\n*Standard Query Engine active.*",
		tpl.ID, render.Summary(values))
	return content, stmt.SQL
}

func (s *Session) ask(ctx context.Context, text string, history []models.Turn) string {
	content, err := s.gateway.Chat(ctx, models.ChatRequest{
		Message: text,
		History: history,
		Context: s.params.Context(),
	})
	if err != nil {
		s.logger.Error("Gateway chat failed", zap.Error(err))
		return GatewayErrorText
	}
	if content == "" {
		return EmptyAnswerText
	}
	return content
}

// newID returns a time-ordered unique id.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

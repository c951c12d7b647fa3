package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/gateway"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/params"
	"github.com/xaenox/pocheck/internal/render"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []models.ChatRequest
	content  string
	err      error
	release  chan struct{}
}

func (g *fakeGateway) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.release != nil {
		<-g.release
	}
	return g.content, g.err
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func newTestSession(t *testing.T, gw Gateway, opts ...Option) *Session {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return NewSession(cat, gw, zap.NewNop(), opts...)
}

func TestSubmit_TemplatePath(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(t, gw)
	require.NoError(t, s.Params().Set(params.ID, "45000123"))

	reply, err := s.Submit(context.Background(), "I need the header details for PO [ID]", "PO_HDR")
	require.NoError(t, err)

	assert.Equal(t, models.RoleAssistant, reply.Role)
	require.NotNil(t, reply.Metadata)
	assert.True(t, reply.Metadata.IsFAQ)
	assert.Equal(t, "SELECT * FROM Procurement_Analysis_NRS.v_fact_purch_ord_hdr WHERE purch_doc_nbr = '45000123'", reply.Metadata.SQL)
	assert.Contains(t, reply.Content, "**PO_HDR** master template")
	assert.Contains(t, reply.Content, "| @ID | 45000123 |")
	assert.Contains(t, reply.Content, "*Standard Query Engine active.*")
	assert.Equal(t, 0, gw.calls())

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleUser, msgs[1].Role)
	assert.Equal(t, "I need the header details for PO [ID]", msgs[1].Content)
	assert.Nil(t, msgs[1].Metadata)
	assert.Equal(t, reply, msgs[2])
}

func TestSubmit_TemplateKeepsEmptyTokens(t *testing.T) {
	s := newTestSession(t, &fakeGateway{})
	require.NoError(t, s.Params().Set(params.CostCenterNumber, "100200"))

	reply, err := s.Submit(context.Background(), "spend", "CC_SPEND")
	require.NoError(t, err)
	assert.Contains(t, reply.Metadata.SQL, "frst_seq_cost_centr_char_nbr = '100200'")
	assert.Contains(t, reply.Metadata.SQL, "BETWEEN @FromDate AND @ToDate")
	assert.NotContains(t, reply.Content, "@FromDate")
}

func TestSubmit_TemplateWithBindRenderer(t *testing.T) {
	s := newTestSession(t, &fakeGateway{}, WithRenderer(render.Bind{Placeholder: render.Dollar}))
	require.NoError(t, s.Params().Set(params.ID, "1"))

	reply, err := s.Submit(context.Background(), "hdr", "PO_HDR")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM Procurement_Analysis_NRS.v_fact_purch_ord_hdr WHERE purch_doc_nbr = $1", reply.Metadata.SQL)
}

func TestSubmit_GatewayPath(t *testing.T) {
	gw := &fakeGateway{content: "Here is data.\n```sql\nSELECT 1\n```"}
	s := newTestSession(t, gw, WithAIEnabled(true))
	require.NoError(t, s.Params().Set(params.ID, "123"))

	reply, err := s.Submit(context.Background(), "show PO 123", "")
	require.NoError(t, err)

	assert.Equal(t, gw.content, reply.Content)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, "SELECT 1", reply.Metadata.SQL)
	assert.False(t, reply.Metadata.IsFAQ)

	require.Equal(t, 1, gw.calls())
	req := gw.requests[0]
	assert.Equal(t, "show PO 123", req.Message)
	assert.Equal(t, []models.Turn{{Role: models.RoleAssistant, Content: WelcomeText}}, req.History)
	assert.Equal(t, "123", req.Context[params.ID])
	assert.Len(t, req.Context, len(params.Tokens))
}

func TestSubmit_HistoryGrows(t *testing.T) {
	gw := &fakeGateway{content: "answer"}
	s := newTestSession(t, gw)

	_, err := s.Submit(context.Background(), "first", "")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "second", "")
	require.NoError(t, err)

	require.Equal(t, 2, gw.calls())
	assert.Equal(t, []models.Turn{
		{Role: models.RoleAssistant, Content: WelcomeText},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "answer"},
	}, gw.requests[1].History)
}

func TestSubmit_Routing(t *testing.T) {
	tests := []struct {
		name       string
		ai         bool
		policy     UnknownTemplatePolicy
		templateID string
		wantFAQ    bool
		wantCalls  int
	}{
		{"known id, ai off", false, FallbackToGateway, "PO_LINES", true, 0},
		{"known id, ai on", true, FallbackToGateway, "PO_LINES", false, 1},
		{"unknown id, ai off, fallback", false, FallbackToGateway, "PO_NOPE", false, 1},
		{"unknown id, ai on, reject", true, RejectUnknown, "PO_NOPE", false, 1},
		{"unknown id, ai off, reject", false, RejectUnknown, "PO_NOPE", false, 0},
		{"free text, ai off", false, FallbackToGateway, "", false, 1},
		{"lowercase id is unknown", false, FallbackToGateway, "po_lines", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{content: "ok"}
			s := newTestSession(t, gw, WithAIEnabled(tt.ai), WithUnknownTemplatePolicy(tt.policy))

			reply, err := s.Submit(context.Background(), "question", tt.templateID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFAQ, reply.FromTemplate())
			assert.Equal(t, tt.wantCalls, gw.calls())
		})
	}
}

func TestSubmit_RejectUnknownNamesTemplate(t *testing.T) {
	s := newTestSession(t, &fakeGateway{}, WithUnknownTemplatePolicy(RejectUnknown))
	reply, err := s.Submit(context.Background(), "question", "PO_NOPE")
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "PO_NOPE")
	assert.Empty(t, reply.SQL())
}

func TestSubmit_GatewayFailure(t *testing.T) {
	s := newTestSession(t, &fakeGateway{err: errors.New("dial tcp: refused")})

	reply, err := s.Submit(context.Background(), "show PO 123", "")
	require.NoError(t, err)
	assert.Equal(t, GatewayErrorText, reply.Content)
	assert.Empty(t, reply.SQL())
	assert.Len(t, s.Messages(), 3)
}

func TestSubmit_GatewayHTTP500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestSession(t, gateway.NewClient(server.URL, 0, zap.NewNop()), WithAIEnabled(true))
	reply, err := s.Submit(context.Background(), "show PO 123", "")
	require.NoError(t, err)
	assert.Equal(t, GatewayErrorText, reply.Content)
	assert.Equal(t, models.RoleAssistant, s.Messages()[2].Role)
}

func TestSubmit_GatewayRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ChatResponse{Content: "Here is data.\n```sql\nSELECT 1\n```"})
	}))
	defer server.Close()

	s := newTestSession(t, gateway.NewClient(server.URL, 0, zap.NewNop()), WithAIEnabled(true))
	reply, err := s.Submit(context.Background(), "show PO 123", "")
	require.NoError(t, err)
	assert.Equal(t, "Here is data.\n```sql\nSELECT 1\n```", reply.Content)
	assert.Equal(t, "SELECT 1", reply.SQL())
}

func TestSubmit_EmptyGatewayAnswer(t *testing.T) {
	s := newTestSession(t, &fakeGateway{content: ""})
	reply, err := s.Submit(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, EmptyAnswerText, reply.Content)
}

func TestSubmit_EmptyInput(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(t, gw)
	_, err := s.Submit(context.Background(), "   ", "PO_HDR")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Len(t, s.Messages(), 1)
	assert.Equal(t, 0, gw.calls())
}

func TestSubmit_BusyGuard(t *testing.T) {
	gw := &fakeGateway{content: "late answer", release: make(chan struct{})}
	s := newTestSession(t, gw)

	done := make(chan models.Message)
	go func() {
		reply, err := s.Submit(context.Background(), "first", "")
		assert.NoError(t, err)
		done <- reply
	}()

	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	_, err := s.Submit(context.Background(), "second", "")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Select(context.Background(), "PO_HDR")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, 1, gw.calls())

	close(gw.release)
	reply := <-done
	assert.Equal(t, "late answer", reply.Content)
	assert.False(t, s.Busy())
	assert.Len(t, s.Messages(), 3)
}

func TestSelect(t *testing.T) {
	gw := &fakeGateway{content: "ai"}
	s := newTestSession(t, gw)
	require.NoError(t, s.Params().Set(params.ID, "9"))

	reply, err := s.Select(context.Background(), "SUPL_DIM")
	require.NoError(t, err)
	assert.True(t, reply.FromTemplate())
	assert.Equal(t, "SELECT * FROM SUPPLIER.v_supl WHERE supl_id = '9'", reply.SQL())
	assert.Equal(t, "Show master data for Supplier [ID]", s.Messages()[1].Content)

	s.SetAIEnabled(true)
	reply, err = s.Select(context.Background(), "SUPL_DIM")
	require.NoError(t, err)
	assert.False(t, reply.FromTemplate())
	require.Equal(t, 1, gw.calls())
	assert.Equal(t, "Show master data for Supplier [ID]", gw.requests[0].Message)
}

func TestClear(t *testing.T) {
	s := newTestSession(t, &fakeGateway{content: "x"})
	seed := s.Messages()[0]

	_, err := s.Submit(context.Background(), "one", "")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "two", "PO_HDR")
	require.NoError(t, err)
	require.Len(t, s.Messages(), 5)

	s.Clear()
	assert.Equal(t, []models.Message{seed}, s.Messages())
	assert.Equal(t, WelcomeText, seed.Content)
}

func TestClearWhilePending(t *testing.T) {
	gw := &fakeGateway{content: "late answer", release: make(chan struct{})}
	s := newTestSession(t, gw)
	seed := s.Messages()[0]

	done := make(chan struct{})
	go func() {
		_, err := s.Submit(context.Background(), "slow question", "")
		assert.NoError(t, err)
		close(done)
	}()
	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	s.Clear()
	assert.Equal(t, []models.Message{seed}, s.Messages())

	close(gw.release)
	<-done

	// The answer still lands, directly after the welcome message.
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, seed, msgs[0])
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "late answer", msgs[1].Content)
}

func TestMessageIDsAreUniqueAndOrdered(t *testing.T) {
	s := newTestSession(t, &fakeGateway{content: "x"})
	for i := 0; i < 5; i++ {
		_, err := s.Submit(context.Background(), "q", "")
		require.NoError(t, err)
	}
	seen := make(map[string]bool)
	msgs := s.Messages()
	for i, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.Less(t, msgs[i-1].ID, m.ID)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FallbackToGateway, p)

	p, err = ParsePolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, RejectUnknown, p)

	_, err = ParsePolicy("explode")
	assert.Error(t, err)
}

func TestSessions(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	reg := NewSessions(func() *Session { return NewSession(cat, &fakeGateway{}, zap.NewNop()) })

	a := reg.Get(1)
	assert.Same(t, a, reg.Get(1))
	assert.NotSame(t, a, reg.Get(2))
	assert.Equal(t, 2, reg.Len())

	reg.Drop(1)
	assert.NotSame(t, a, reg.Get(1))
}

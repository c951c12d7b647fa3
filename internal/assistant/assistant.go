// Package assistant produces the gateway's answers to free-form procurement
// questions.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/params"
)

// Responder answers one chat request.
type Responder interface {
	Respond(ctx context.Context, req models.ChatRequest) (string, error)
}

// DefaultDocumentID is used in generated SQL when no @ID filter is set.
const DefaultDocumentID = "4500000000"

// KeywordResponder is an offline responder. It acknowledges the request and,
// when the question is about purchase orders, drafts a PO header query.
type KeywordResponder struct{}

func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{}
}

func (r *KeywordResponder) Respond(_ context.Context, req models.ChatRequest) (string, error) {
	text := strings.ToLower(req.Message)

	var b strings.Builder
	fmt.Fprintf(&b, "I have processed your request regarding '%s'.", req.Message)

	if strings.Contains(text, "po") || strings.Contains(text, "purch") {
		id := req.Context[params.ID]
		if id == "" {
			id = DefaultDocumentID
		}
		fmt.Fprintf(&b, "\n\n```sql\nSELECT * FROM Procurement_Analysis_NRS.v_fact_purch_ord_hdr WHERE purch_doc_nbr = '%s';\n```", id)
		b.WriteString("\n\nI've generated a query for the Purchase Order header based on your current filters.")
	} else {
		b.WriteString("\n\nHow else can I assist you with your Teradata procurement data today?")
	}
	return b.String(), nil
}

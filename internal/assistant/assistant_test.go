package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/pocheck/internal/models"
)

func TestKeywordResponder_PurchaseOrder(t *testing.T) {
	r := NewKeywordResponder()

	got, err := r.Respond(context.Background(), models.ChatRequest{
		Message: "Show PO 123",
		Context: map[string]string{"@ID": "45000123"},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "I have processed your request regarding 'Show PO 123'.")
	assert.Contains(t, got, "```sql\nSELECT * FROM Procurement_Analysis_NRS.v_fact_purch_ord_hdr WHERE purch_doc_nbr = '45000123';\n```")
}

func TestKeywordResponder_DefaultID(t *testing.T) {
	got, err := NewKeywordResponder().Respond(context.Background(), models.ChatRequest{Message: "purchasing status"})
	require.NoError(t, err)
	assert.Contains(t, got, "purch_doc_nbr = '"+DefaultDocumentID+"'")
}

func TestKeywordResponder_Other(t *testing.T) {
	got, err := NewKeywordResponder().Respond(context.Background(), models.ChatRequest{Message: "hello there"})
	require.NoError(t, err)
	assert.NotContains(t, got, "```sql")
	assert.Contains(t, got, "How else can I assist you")
}

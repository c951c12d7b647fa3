package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/models"
)

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, content string, captured *completionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func TestGPTResponder_Respond(t *testing.T) {
	var got completionRequest
	server := completionServer(t, "  Here is data.\n```sql\nSELECT 1\n```  ", &got)
	defer server.Close()

	r := NewGPTResponder("test-key", server.URL+"/v1", "test-model", 256, 0.2, nil, zap.NewNop())
	content, err := r.Respond(context.Background(), models.ChatRequest{
		Message: "show PO 123",
		History: []models.Turn{
			{Role: models.RoleAssistant, Content: "welcome"},
			{Role: models.RoleUser, Content: "earlier"},
		},
		Context: map[string]string{"@ID": "123", "@UserID": ""},
	})

	require.NoError(t, err)
	assert.Equal(t, "Here is data.\n```sql\nSELECT 1\n```", content)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Teradata")
	assert.Contains(t, got.Messages[0].Content, `{"@ID":"123"}`)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "show PO 123", got.Messages[3].Content)
}

func TestGPTResponder_NoFilterContext(t *testing.T) {
	var got completionRequest
	server := completionServer(t, "ok", &got)
	defer server.Close()

	r := NewGPTResponder("test-key", server.URL+"/v1", "test-model", 0, 0, nil, zap.NewNop())
	_, err := r.Respond(context.Background(), models.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.NotContains(t, got.Messages[0].Content, "Current filter context")
}

func TestGPTResponder_FallbackOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	r := NewGPTResponder("test-key", server.URL+"/v1", "test-model", 0, 0, NewKeywordResponder(), zap.NewNop())
	content, err := r.Respond(context.Background(), models.ChatRequest{Message: "po status"})
	require.NoError(t, err)
	assert.Contains(t, content, "I have processed your request regarding 'po status'.")

	r = NewGPTResponder("test-key", server.URL+"/v1", "test-model", 0, 0, nil, zap.NewNop())
	_, err = r.Respond(context.Background(), models.ChatRequest{Message: "po status"})
	assert.Error(t, err)
}

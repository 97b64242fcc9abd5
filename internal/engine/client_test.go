package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wisegate/wisegate/internal/domain"
)

func TestAddAnswerRequestWireFormat(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/answer-request", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"answer": "X is a thing.",
			"sources": [{
				"chunk_id": "ch-1",
				"chunk_number": 3,
				"file_name": "intro.pdf",
				"page_index": 7,
				"percentage_in": 42.5,
				"mimetype": "application/pdf",
				"resource_name": "Intro"
			}]
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.AddAnswerRequest(context.Background(), AnswerRequest{
		KnowledgeBaseID: "kb1",
		Question:        "What is X?",
		Reference:       "u1:req42",
		Conversation: []domain.ConversationEntry{
			{Sender: domain.SenderUser, Content: "earlier question"},
			{Sender: domain.SenderAIEngine, Content: "earlier answer"},
		},
		Language: "en",
	})
	require.NoError(t, err)

	require.Equal(t, "kb1", captured["knowledge_base_id"])
	require.Equal(t, "What is X?", captured["question"])
	require.Equal(t, "u1:req42", captured["reference"])
	require.Equal(t, "en", captured["language"])
	require.Len(t, captured["conversation"], 2)
	first := captured["conversation"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "USER", first["sender"])
	require.Equal(t, "earlier question", first["content"])

	// wisdom_level was empty and must be omitted, not sent blank.
	_, present := captured["wisdom_level"]
	require.False(t, present)

	require.Equal(t, "X is a thing.", result.Answer)
	require.Len(t, result.Sources, 1)
	require.Equal(t, domain.Source{
		ChunkID:      "ch-1",
		ChunkNumber:  3,
		FileName:     "intro.pdf",
		PageIndex:    7,
		PercentageIn: 42.5,
		Mimetype:     "application/pdf",
		ResourceName: "Intro",
	}, result.Sources[0])
}

func TestAddAnswerRequestOmitsEmptyConversation(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		io.WriteString(w, `{"answer":"ok","sources":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.AddAnswerRequest(context.Background(), AnswerRequest{
		KnowledgeBaseID: "kb1",
		Question:        "q",
		Reference:       "u1:r",
	})
	require.NoError(t, err)

	for _, key := range []string{"conversation", "language", "wisdom_level"} {
		_, present := captured[key]
		require.False(t, present, "key %q must be omitted when empty", key)
	}
}

func TestAddAnswerRequestUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.AddAnswerRequest(context.Background(), AnswerRequest{
		KnowledgeBaseID: "kb1",
		Question:        "q",
		Reference:       "u1:r",
	})
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.Contains(t, err.Error(), "503")
}

func TestAddAnswerRequestConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := c.AddAnswerRequest(context.Background(), AnswerRequest{
		KnowledgeBaseID: "kb1",
		Question:        "q",
		Reference:       "u1:r",
	})
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

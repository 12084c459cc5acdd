package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
)

func testRequest() model.Request {
	return model.Request{
		Model:       "remote/model",
		Prompt:      "what is this",
		Images:      []domain.Image{{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MimeType: "image/jpeg"}},
		Temperature: 0.1,
		MaxTokens:   50,
		TopP:        0.95,
	}
}

func TestOllamaComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"message":{"role":"assistant","content":"coding"},"done":true}`)
	}))
	defer server.Close()

	c := New(server.URL, "llava")

	text, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "coding", text)

	assert.Equal(t, "llava", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 50, got.Options.NumPredict)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "what is this", got.Messages[0].Content)
	assert.Equal(t, []string{"/9j/4A=="}, got.Messages[0].Images)
}

func TestOllamaCompleteNetworkError(t *testing.T) {
	c := New("http://localhost:99999", "llava")

	_, err := c.Complete(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestOllamaCompleteStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "llava")

	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestOllamaCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		_, _ = fmt.Fprintln(w, `{"message":{"content":"Hel"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":"lo"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":"ignored"},"done":false}`)
	}))
	defer server.Close()

	c := New(server.URL, "llava")

	ch, err := c.CompleteStream(context.Background(), testRequest())
	require.NoError(t, err)

	var deltas []string
	for ev := range ch {
		require.NoError(t, ev.Err)
		deltas = append(deltas, ev.Delta)
	}
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestOllamaCompleteStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	c := New(server.URL, "llava")

	ch, err := c.CompleteStream(context.Background(), testRequest())
	require.NoError(t, err)

	ev, ok := <-ch
	require.True(t, ok)
	assert.ErrorContains(t, ev.Err, "model not found")
}

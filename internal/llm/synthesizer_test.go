package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  The MSBA is offered by JSOM.  "}}]}`))
	}))
	defer srv.Close()

	s, err := New(Config{BaseURL: srv.URL + "/v1/", APIToken: "sk-test", Model: "gpt-test"}, srv.Client(), nil)
	require.NoError(t, err)

	answer, err := s.Synthesize(context.Background(), "what is msba?", []string{"MSBA at JSOM.\nSource: https://x"})
	require.NoError(t, err)
	assert.Equal(t, "The MSBA is offered by JSOM.", answer)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Passage 1:\nMSBA at JSOM.")
	assert.Contains(t, got.Messages[1].Content, "Question: what is msba?")
}

func TestSynthesizeErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string
		want   string
	}{
		"api error":  {http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, "rate limited"},
		"no choices": {http.StatusOK, `{"choices":[]}`, "no choices"},
		"bad json":   {http.StatusBadGateway, `<html>`, "decode response"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s, err := New(Config{BaseURL: srv.URL, APIToken: "k"}, srv.Client(), nil)
			require.NoError(t, err)
			_, err = s.Synthesize(context.Background(), "q", []string{"p"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestSynthesizeLogsFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zap.DebugLevel)
	s, err := New(Config{BaseURL: srv.URL, APIToken: "k", Model: "gpt-test"}, srv.Client(), zap.New(core))
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", []string{"p"})
	require.Error(t, err)

	entries := logs.FilterMessage("chat completion failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "llm", entries[0].LoggerName)
	assert.Equal(t, "gpt-test", entries[0].ContextMap()["model"])
}

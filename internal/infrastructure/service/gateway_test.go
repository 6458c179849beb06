package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
)

func geminiServer(t *testing.T, h http.HandlerFunc) *gemini.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := gemini.DefaultClientConfig(srv.URL, "test-key")
	cfg.HTTPClient = srv.Client()
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.RateLimiterConfig = gemini.RateLimiterConfig{RequestsPerMinute: 6000, BurstSize: 50}
	return gemini.NewClient(cfg)
}

func modelText(text string) string {
	b, _ := json.Marshal(map[string]any{"candidates": []any{map[string]any{
		"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		"finishReason": "STOP",
	}}})
	return string(b)
}

func TestGeminiAnalysisGateway(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-flash-latest:generateContent"), r.URL.Path)
		io.WriteString(w, modelText(`{"success":"బాగుంది","decline":"తగ్గింది","weakSubjects":"గణితం"}`))
	})
	gw := NewGeminiAnalysisGateway(client, "gemini-flash-latest", DefaultPrompts())

	a, err := gw.RequestAnalysis(context.Background(), testStudent())
	require.NoError(t, err)
	assert.Equal(t, "బాగుంది", a.Success)
	assert.Equal(t, "గణితం", a.WeakSubjects)
	assert.Equal(t, "gemini-flash-latest", gw.Model())
}

func TestGeminiAnalysisGateway_IncompleteAnswer(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, modelText(`{"success":"బాగుంది","decline":"","weakSubjects":"గణితం"}`))
	})
	gw := NewGeminiAnalysisGateway(client, "m", DefaultPrompts())

	_, err := gw.RequestAnalysis(context.Background(), testStudent())
	assert.ErrorIs(t, err, shared.ErrGeminiInvalidResponse)
}

func TestGeminiChatGateway(t *testing.T) {
	var body struct {
		Contents []struct {
			Role string `json:"role"`
		} `json:"contents"`
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprintf(w, "data: %s\n\n", modelText("సరే"))
	})
	gw := NewGeminiChatGateway(client, "m")

	history := []chat.Message{
		{Role: chat.RoleModel, Text: "నమస్కారం"},
		{Role: chat.RoleUser, Text: "  "},
		{Role: chat.RoleUser, Text: "how am I doing?"},
	}
	var chunks []string
	full, err := gw.StreamReply(context.Background(), "mentor", history, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "సరే", full)
	assert.Equal(t, []string{"సరే"}, chunks)

	require.Len(t, body.Contents, 2)
	assert.Equal(t, "model", body.Contents[0].Role)
	assert.Equal(t, "user", body.Contents[1].Role)
	require.Len(t, body.SystemInstruction.Parts, 1)
	assert.Equal(t, "mentor", body.SystemInstruction.Parts[0].Text)
}

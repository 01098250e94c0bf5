package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deep-research/internal/resilience"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
		wantText      string
		wantCitations int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Grid storage is growing. "}}],
				"citations": ["https://example.com/a", "https://example.com/b"],
				"search_results": [{"title": "A", "url": "https://example.com/a"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantText:      "Grid storage is growing.",
			wantCitations: 2,
		},
		{
			name:          "rate_limit",
			status:        http.StatusTooManyRequests,
			body:          `{"error": "rate limit exceeded"}`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:          "server_error",
			status:        http.StatusInternalServerError,
			body:          `{"error": "internal server error"}`,
			wantErr:       "unexpected status 500",
			wantTransient: true,
		},
		{
			name:    "bad_request",
			status:  http.StatusBadRequest,
			body:    `{"error": "invalid model"}`,
			wantErr: "invalid model",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "state of grid storage"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text())
			assert.Len(t, resp.Citations, tt.wantCitations)
			assert.Equal(t, 5, resp.Usage.CompletionTokens)
		})
	}
}

func TestChatCompletion_ModelSelection(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		reqModel  string
		wantModel string
	}{
		{name: "default", wantModel: "sonar-pro"},
		{name: "client option", opts: []Option{WithModel("sonar")}, wantModel: "sonar"},
		{name: "empty option keeps default", opts: []Option{WithModel("")}, wantModel: "sonar-pro"},
		{name: "request wins", opts: []Option{WithModel("sonar")}, reqModel: "sonar-reasoning", wantModel: "sonar-reasoning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req ChatCompletionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tt.wantModel, req.Model)
				w.Write([]byte(`{"id":"x","choices":[]}`)) //nolint:errcheck
			}))
			defer srv.Close()

			opts := append([]Option{WithBaseURL(srv.URL)}, tt.opts...)
			resp, err := NewClient("k", opts...).ChatCompletion(context.Background(), ChatCompletionRequest{Model: tt.reqModel})
			require.NoError(t, err)
			assert.Empty(t, resp.Text())
		})
	}
}

func TestChatCompletion_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestText_Nil(t *testing.T) {
	var r *ChatCompletionResponse
	assert.Equal(t, "", r.Text())
}

func TestChatCompletion_SearchOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "academic", body["search_mode"])
		assert.Equal(t, "week", body["search_recency_filter"])
		assert.Equal(t, []any{"nature.com"}, body["search_domain_filter"])
		assert.Equal(t, map[string]any{"search_context_size": "high"}, body["web_search_options"])
		w.Write([]byte(`{"id":"x","choices":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		SearchMode:    "academic",
		SearchRecency: "week",
		SearchDomains: []string{"nature.com"},
		WebSearch:     &WebSearchOptions{SearchContextSize: ContextHigh},
	})
	require.NoError(t, err)
}

func TestSources(t *testing.T) {
	tests := []struct {
		name string
		resp *ChatCompletionResponse
		want []SearchResult
	}{
		{name: "nil", resp: nil, want: nil},
		{
			name: "search results first",
			resp: &ChatCompletionResponse{
				Citations: []string{"https://a.example/1", "https://b.example/2"},
				SearchResults: []SearchResult{
					{Title: "A", URL: "https://a.example/1", Snippet: "alpha"},
				},
			},
			want: []SearchResult{
				{Title: "A", URL: "https://a.example/1", Snippet: "alpha"},
				{Title: "b.example", URL: "https://b.example/2"},
			},
		},
		{
			name: "duplicates and blanks dropped",
			resp: &ChatCompletionResponse{
				Citations: []string{" ", "not a url", "not a url"},
				SearchResults: []SearchResult{
					{Title: "A", URL: " https://a.example "},
					{Title: "A again", URL: "https://a.example"},
					{Title: "no url"},
				},
			},
			want: []SearchResult{
				{Title: "A", URL: "https://a.example"},
				{Title: "not a url", URL: "not a url"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.resp.Sources()
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

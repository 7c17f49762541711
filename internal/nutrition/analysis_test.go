package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticKey string

func (k staticKey) APIKey(ctx context.Context) (string, error) {
	return string(k), nil
}

func newTestAnalysisClient(t *testing.T, baseURL string, key string) *AnalysisClient {
	t.Helper()
	client, err := NewAnalysisClient(AnalysisClientConfig{
		BaseURL: baseURL,
		Keys:    staticKey(key),
	})
	if err != nil {
		t.Fatalf("failed to build analysis client: %v", err)
	}
	return client
}

func TestAnalyzeTextParsesCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Fatalf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing version header")
		}
		body, _ := io.ReadAll(r.Body)
		var request map[string]any
		if err := json.Unmarshal(body, &request); err != nil {
			t.Fatalf("request is not valid JSON: %v", err)
		}
		if request["model"] == "" {
			t.Fatalf("request must name a model")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Here is the breakdown:\n[{\"description\": \"two slices of bread\", \"protein_g\": 6, \"calories\": 160, \"confidence\": 0.9}, {\"description\": \"one banana\", \"protein_g\": 1.3, \"calories\": 105, \"confidence\": 0.95}]"}]
		}`))
	}))
	defer server.Close()

	client := newTestAnalysisClient(t, server.URL, "sk-test")
	candidates, err := client.AnalyzeText(context.Background(), "two slices of bread and a banana")
	if err != nil {
		t.Fatalf("unexpected analysis error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Description != "two slices of bread" || candidates[0].ProteinG != 6 {
		t.Fatalf("unexpected first candidate: %+v", candidates[0])
	}
	if candidates[1].Confidence != 0.95 {
		t.Fatalf("unexpected confidence: %v", candidates[1].Confidence)
	}
}

func TestAnalyzePhotoSendsImagePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var request struct {
			Messages []struct {
				Content []struct {
					Type   string `json:"type"`
					Source *struct {
						Type      string `json:"type"`
						MediaType string `json:"media_type"`
						Data      string `json:"data"`
					} `json:"source"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &request); err != nil {
			t.Fatalf("request is not valid JSON: %v", err)
		}
		if len(request.Messages) != 1 || len(request.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with image and text parts")
		}
		image := request.Messages[0].Content[0]
		if image.Type != "image" || image.Source == nil || image.Source.MediaType != "image/png" {
			t.Fatalf("unexpected image part: %+v", image)
		}
		if image.Source.Data == "" {
			t.Fatalf("image payload missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "{\"description\": \"scrambled eggs\", \"protein_g\": 13, \"confidence\": 0.7}"}]}`))
	}))
	defer server.Close()

	client := newTestAnalysisClient(t, server.URL, "sk-test")
	candidates, err := client.AnalyzePhoto(context.Background(), []byte{1, 2, 3}, "image/png")
	if err != nil {
		t.Fatalf("unexpected analysis error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Description != "scrambled eggs" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestAnalyzeRequiresConfiguredKey(t *testing.T) {
	client := newTestAnalysisClient(t, "http://127.0.0.1:0", "")
	_, err := client.AnalyzeText(context.Background(), "anything")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAnalyzeSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "authentication_error", "message": "invalid key"}}`))
	}))
	defer server.Close()

	client := newTestAnalysisClient(t, server.URL, "sk-wrong")
	_, err := client.AnalyzeText(context.Background(), "anything")
	if err == nil {
		t.Fatalf("expected an API error")
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  int
		expectErr bool
	}{
		{
			name:     "clean-array",
			input:    `[{"description":"rice","protein_g":4,"confidence":0.8}]`,
			expected: 1,
		},
		{
			name:     "array-with-prose",
			input:    "Sure! Here you go:\n[{\"description\":\"rice\",\"protein_g\":4,\"confidence\":0.8}]\nEnjoy!",
			expected: 1,
		},
		{
			name:     "single-object-fallback",
			input:    `{"description":"rice","protein_g":4,"confidence":0.8}`,
			expected: 1,
		},
		{name: "empty-array", input: `[]`, expectErr: true},
		{name: "no-json", input: "I cannot tell what is on this plate.", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := parseCandidates(tt.input)
			if tt.expectErr {
				if !errors.Is(err, ErrUnparsableAnalysis) {
					t.Fatalf("expected ErrUnparsableAnalysis, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(candidates) != tt.expected {
				t.Fatalf("expected %d candidates, got %d", tt.expected, len(candidates))
			}
		})
	}
}

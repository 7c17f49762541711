package nutrition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAnalysisBaseURL = "https://api.anthropic.com"
	analysisAPIVersion     = "2023-06-01"
	defaultAnalysisModel   = "claude-sonnet-4-5-20250929"
	analysisMaxTokens      = 1024
)

var (
	// ErrNoAPIKey indicates the analysis API key has not been configured in
	// settings.
	ErrNoAPIKey = errors.New("nutrition: analysis API key not configured")
	// ErrUnparsableAnalysis indicates the model response contained no usable
	// JSON payload.
	ErrUnparsableAnalysis = errors.New("nutrition: could not parse analysis response")
)

// Candidate is one estimated food item produced by photo or text analysis.
// The user edits candidates before they are committed to the store, where
// validation happens.
type Candidate struct {
	Description string   `json:"description"`
	ProteinG    float64  `json:"protein_g"`
	Calories    *float64 `json:"calories,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// KeySource supplies the analysis API credential from settings.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// AnalysisClientConfig describes the dependencies of the analysis client.
type AnalysisClientConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Keys       KeySource
	Logger     *zap.Logger
}

// AnalysisClient estimates nutritional content from meal photos and
// free-text descriptions via a messages-style LLM API.
type AnalysisClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	keys       KeySource
	logger     *zap.Logger
}

func NewAnalysisClient(cfg AnalysisClientConfig) (*AnalysisClient, error) {
	if cfg.Keys == nil {
		return nil, errors.New("nutrition: key source is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnalysisBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnalysisModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		keys:       cfg.Keys,
		logger:     logger,
	}, nil
}

const analysisPromptFormat = `Respond ONLY with a JSON array in this format (no further explanation):
[
  {
    "description": "food item with amount",
    "protein_g": <number in grams>,
    "calories": <number in kcal>,
    "confidence": <number between 0 and 1>
  }
]
Identify every food item separately and estimate protein and calories for each.`

type messageContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *messageContext `json:"source,omitempty"`
}

type messageContext struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string           `json:"role"`
		Content []messageContent `json:"content"`
	} `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzePhoto estimates the food items on a meal photo.
func (c *AnalysisClient) AnalyzePhoto(ctx context.Context, photo []byte, mediaType string) ([]Candidate, error) {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	content := []messageContent{
		{
			Type: "image",
			Source: &messageContext{
				Type:      "base64",
				MediaType: mediaType,
				Data:      base64.StdEncoding.EncodeToString(photo),
			},
		},
		{
			Type: "text",
			Text: "Analyze this photo of a meal.\n\n" + analysisPromptFormat,
		},
	}
	return c.analyze(ctx, content)
}

// AnalyzeText estimates the food items in a free-text meal description.
func (c *AnalysisClient) AnalyzeText(ctx context.Context, description string) ([]Candidate, error) {
	prompt := fmt.Sprintf("I ate the following: %q\n\nIf no amounts are given, assume an average portion.\n\n%s",
		description, analysisPromptFormat)
	content := []messageContent{{Type: "text", Text: prompt}}
	return c.analyze(ctx, content)
}

func (c *AnalysisClient) analyze(ctx context.Context, content []messageContent) ([]Candidate, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("nutrition: load api key: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}

	request := messagesRequest{
		Model:     c.model,
		MaxTokens: analysisMaxTokens,
	}
	request.Messages = append(request.Messages, struct {
		Role    string           `json:"role"`
		Content []messageContent `json:"content"`
	}{Role: "user", Content: content})

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("nutrition: encode analysis request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nutrition: build analysis request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-api-key", apiKey)
	httpRequest.Header.Set("anthropic-version", analysisAPIVersion)

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("nutrition: analysis API unreachable: %w", err)
	}
	defer response.Body.Close()

	var payload messagesResponse
	decodeErr := json.NewDecoder(response.Body).Decode(&payload)

	if response.StatusCode != http.StatusOK {
		if decodeErr == nil && payload.Error != nil {
			return nil, fmt.Errorf("nutrition: analysis API error %d: %s", response.StatusCode, payload.Error.Message)
		}
		return nil, fmt.Errorf("nutrition: analysis API error %d", response.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("nutrition: decode analysis response: %w", decodeErr)
	}
	if len(payload.Content) == 0 {
		return nil, ErrUnparsableAnalysis
	}

	candidates, err := parseCandidates(payload.Content[0].Text)
	if err != nil {
		c.logger.Warn("analysis response unparsable", zap.Error(err))
		return nil, err
	}
	return candidates, nil
}

// parseCandidates extracts the first JSON array from the model's free-form
// answer, falling back to a single JSON object wrapped in a slice. Models
// occasionally preface the payload with prose despite the prompt.
func parseCandidates(text string) ([]Candidate, error) {
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			var candidates []Candidate
			if err := json.Unmarshal([]byte(text[start:end+1]), &candidates); err == nil && len(candidates) > 0 {
				return candidates, nil
			}
		}
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			var candidate Candidate
			if err := json.Unmarshal([]byte(text[start:end+1]), &candidate); err == nil {
				return []Candidate{candidate}, nil
			}
		}
	}
	return nil, ErrUnparsableAnalysis
}

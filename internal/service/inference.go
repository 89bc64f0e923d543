package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/nutrilens/internal/config"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/nutrition"
	"github.com/timmy/nutrilens/internal/prompts"
)

// MealAnalyzer turns a meal photo or description into an untrusted analysis.
// Implementations return domain.ErrNothingRecognized when the service
// answered but listed no foods.
type MealAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.RawAnalysis, error)
	AnalyzeText(ctx context.Context, description string) (*nutrition.RawAnalysis, error)
}

// InferenceService calls an OpenAI-compatible chat completions endpoint for
// meal analysis. It never retries; callers see transport failures at once.
type InferenceService struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
}

// NewInferenceService creates a new inference client.
// Parameters:
//   - cfg: inference configuration including model, API key and base URL.
//
// Returns:
//   - *InferenceService: initialized client wrapper.
func NewInferenceService(cfg *config.InferenceConfig) *InferenceService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1200
	}

	return &InferenceService{
		client:      client,
		model:       cfg.Model,
		endpoint:    baseURL + "/chat/completions",
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// GetModel returns the model name being used.
func (s *InferenceService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []interface{} for image parts
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// AnalyzeImage analyzes a meal photo.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - mimeType: sniffed MIME type of imageData.
//
// Returns:
//   - *nutrition.RawAnalysis: untrusted analysis with at least one food.
//   - error: domain.ErrNothingRecognized for an empty food list, otherwise
//     non-nil on transport or parse failure.
func (s *InferenceService) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.RawAnalysis, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	return s.analyze(ctx, []chatMessage{
		{Role: "system", Content: prompts.AnalysisSystemPrompt},
		{
			Role: "user",
			Content: []interface{}{
				textPart{Type: "text", Text: prompts.ImageUserPrompt},
				imagePart{Type: "image_url", ImageURL: imageURL{URL: dataURL, Detail: "auto"}},
			},
		},
	})
}

// AnalyzeText analyzes a free-text meal description.
func (s *InferenceService) AnalyzeText(ctx context.Context, description string) (*nutrition.RawAnalysis, error) {
	return s.analyze(ctx, []chatMessage{
		{Role: "system", Content: prompts.AnalysisSystemPrompt},
		{Role: "user", Content: prompts.TextUserPrompt(description)},
	})
}

func (s *InferenceService) analyze(ctx context.Context, messages []chatMessage) (*nutrition.RawAnalysis, error) {
	content, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(content)
	if err != nil {
		return nil, err
	}
	if len(analysis.FoodList()) == 0 {
		return nil, domain.ErrNothingRecognized
	}
	return analysis, nil
}

func (s *InferenceService) complete(ctx context.Context, messages []chatMessage) (string, error) {
	req := chatRequest{
		Model:          s.model,
		Messages:       messages,
		MaxTokens:      s.maxTokens,
		Temperature:    s.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call inference API: %w", err)
	}

	if httpResp.IsError() {
		if resp.Error != nil {
			return "", fmt.Errorf("inference API returned HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("inference API returned HTTP %d: %s", httpResp.StatusCode(), truncate(httpResp.String(), 512))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("inference API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in inference response (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

// parseAnalysis decodes the JSON object embedded in a model reply. Numbers
// stay json.Number so the sanitizer sees exactly what the model wrote.
func parseAnalysis(content string) (*nutrition.RawAnalysis, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var analysis nutrition.RawAnalysis
	if err := dec.Decode(&analysis); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}
	return &analysis, nil
}

// extractJSONObject returns the outermost {...} span of s, tolerating
// markdown fences and surrounding prose.
func extractJSONObject(s string) ([]byte, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return nil, errors.New("no JSON object in inference response")
	}
	return []byte(s[start : end+1]), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

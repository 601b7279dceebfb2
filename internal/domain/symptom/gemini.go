package symptom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultGeminiModel = "gemini-1.5-flash"
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
)

const systemPrompt = `You are a medical assistant for patients in rural areas.
Given the symptoms below, name the most likely condition on the first line
and give short, practical advice on the following lines. Always recommend
consulting a doctor for anything serious.`

type GeminiOption func(*GeminiClient)

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) { g.httpClient = c }
}

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(u string) GeminiOption {
	return func(g *GeminiClient) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.model = model
		}
	}
}

// GeminiClient asks the Gemini generateContent API for an assessment.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		apiKey:     apiKey,
		model:      DefaultGeminiModel,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Advise returns the model's answer as a single suggestion. The first line
// of the answer becomes the condition.
func (g *GeminiClient) Advise(ctx context.Context, text string) ([]Suggestion, error) {
	body := geminiRequest{Contents: []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: systemPrompt}}},
		{Role: "user", Parts: []geminiPart{{Text: text}}},
	}}
	body.GenerationConfig.Temperature = 0.7
	body.GenerationConfig.MaxOutputTokens = 1000
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	answer := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if answer == "" {
		return nil, fmt.Errorf("gemini returned an empty answer")
	}

	condition, advice, found := strings.Cut(answer, "\n")
	if !found {
		return []Suggestion{{Condition: "AI assessment", Advice: answer}}, nil
	}
	condition = strings.Trim(strings.TrimSpace(condition), "*#: ")
	return []Suggestion{{Condition: condition, Advice: strings.TrimSpace(advice)}}, nil
}

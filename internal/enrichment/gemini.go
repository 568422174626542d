package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GeminiOptions parameterise the Gemini provider.
type GeminiOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Gemini talks to the Google generative language API.
type Gemini struct {
	opts    GeminiOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGemini builds the Gemini provider.
func NewGemini(apiKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *Gemini {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta/models"
	}

	return &Gemini{
		opts:    GeminiOptions{BaseURL: base, APIKey: apiKey, Timeout: timeout},
		logger:  logger.With().Str("component", "enrichment_gemini").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: base,
	}
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// Models implements Provider.
func (g *Gemini) Models() []string {
	return []string{"gemini-pro", "gemini-1.5-pro", "gemini-1.5-flash"}
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, prompt, model string) (string, error) {
	reqPayload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature: 0.7,
			// 给足输出空间，避免 JSON 被截断
			MaxOutputTokens: 3000,
		},
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, model, g.opts.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", transportError("gemini", model, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("gemini", model, resp.StatusCode, payloadBytes)
	}

	var genRes geminiResponse
	if err := json.Unmarshal(payloadBytes, &genRes); err != nil {
		return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: err.Error()}
	}
	if len(genRes.Candidates) == 0 {
		return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: "response contained no candidates"}
	}

	candidate := genRes.Candidates[0]
	if candidate.FinishReason == "MAX_TOKENS" {
		g.logger.Warn().Str("model", model).Msg("gemini response truncated (MAX_TOKENS)")
	}

	// standard shape: content.parts[0].text; some preview versions put the
	// text directly on content
	if len(candidate.Content.Parts) > 0 && candidate.Content.Parts[0].Text != "" {
		return strings.TrimSpace(candidate.Content.Parts[0].Text), nil
	}
	if candidate.Content.Text != "" {
		return strings.TrimSpace(candidate.Content.Text), nil
	}

	return "", &Error{Provider: "gemini", Model: model, Code: CodeOther, Message: "response contained no text parts"}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Text  string       `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

var _ Provider = (*Gemini)(nil)

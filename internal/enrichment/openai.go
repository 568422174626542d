package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const analystSystemPrompt = "You are a professional equity analyst. Return analysis strictly in the requested JSON format."

// ChatOptions parameterise an OpenAI-compatible chat-completions provider.
type ChatOptions struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Stable is the known-good model list tried after the configured model.
	Stable []string
}

// ChatProvider talks to an OpenAI-compatible chat-completions endpoint.
// OpenAI and DeepSeek share the wire format; only base URL, credentials and
// the stable model list differ.
type ChatProvider struct {
	opts    ChatOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewOpenAI builds the OpenAI provider.
func NewOpenAI(apiKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *ChatProvider {
	return newChat(ChatOptions{
		Name:    "openai",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: timeout,
		Stable:  []string{"gpt-3.5-turbo", "gpt-4o-mini"},
	}, "https://api.openai.com/v1", logger)
}

// NewDeepSeek builds the DeepSeek provider.
func NewDeepSeek(apiKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *ChatProvider {
	return newChat(ChatOptions{
		Name:    "deepseek",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: timeout,
		Stable:  []string{"deepseek-chat"},
	}, "https://api.deepseek.com/v1", logger)
}

func newChat(opts ChatOptions, defaultBase string, logger zerolog.Logger) *ChatProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBase
	}

	return &ChatProvider{
		opts:    opts,
		logger:  logger.With().Str("component", "enrichment_"+opts.Name).Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name implements Provider.
func (p *ChatProvider) Name() string { return p.opts.Name }

// Models implements Provider.
func (p *ChatProvider) Models() []string { return p.opts.Stable }

// Complete implements Provider.
func (p *ChatProvider) Complete(ctx context.Context, prompt, model string) (string, error) {
	reqPayload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: analystSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", &Error{Provider: p.opts.Name, Model: model, Code: CodeOther, Message: err.Error()}
	}

	endpoint := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: p.opts.Name, Model: model, Code: CodeOther, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", transportError(p.opts.Name, model, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: p.opts.Name, Model: model, Code: CodeOther, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(p.opts.Name, model, resp.StatusCode, payloadBytes)
	}

	var chatRes chatResponse
	if err := json.Unmarshal(payloadBytes, &chatRes); err != nil {
		return "", &Error{Provider: p.opts.Name, Model: model, Code: CodeOther, Message: err.Error()}
	}
	if len(chatRes.Choices) == 0 {
		return "", &Error{Provider: p.opts.Name, Model: model, Code: CodeOther, Message: "response contained no choices"}
	}

	return strings.TrimSpace(chatRes.Choices[0].Message.Content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Message string `json:"message"`
}

// statusError maps an HTTP failure onto the chain's error taxonomy.
func statusError(provider, model string, status int, payload []byte) *Error {
	code := CodeOther
	switch {
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = CodeAuthInvalid
	case status == http.StatusTooManyRequests:
		code = CodeQuotaExhausted
	}

	message := fmt.Sprintf("http %d", status)
	var body apiErrorBody
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Error.Message != "" {
			message = fmt.Sprintf("http %d: %s", status, body.Error.Message)
		} else if body.Message != "" {
			message = fmt.Sprintf("http %d: %s", status, body.Message)
		}
	}

	return &Error{Provider: provider, Model: model, Code: code, Message: message}
}

// transportError classifies client-side failures; deadline expiry maps to
// the timeout code so the chain can advance to the next candidate.
func transportError(provider, model string, err error) *Error {
	code := CodeOther
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		code = CodeTimeout
	}
	return &Error{Provider: provider, Model: model, Code: code, Message: err.Error()}
}

var _ Provider = (*ChatProvider)(nil)

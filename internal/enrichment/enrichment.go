package enrichment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCode classifies provider failures for the fallback protocol.
type ErrorCode string

const (
	// CodeNotFound: the requested model (or endpoint) does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodeAuthInvalid: the credential was rejected.
	CodeAuthInvalid ErrorCode = "auth_invalid"
	// CodeQuotaExhausted: rate or quota limits hit.
	CodeQuotaExhausted ErrorCode = "quota_exhausted"
	// CodeTimeout: the call exceeded its deadline.
	CodeTimeout ErrorCode = "timeout"
	// CodeOther: anything else.
	CodeOther ErrorCode = "other"
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Model    string
	Code     ErrorCode
	Message  string
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s/%s): %s", e.Code, e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Provider, e.Message)
}

// Provider is one analysis backend capable of completing a prompt against a
// named model variant.
type Provider interface {
	Name() string
	// Models lists the provider's known-stable model variants, preferred
	// first. The chain appends these after the user-configured model.
	Models() []string
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Result is the structured commentary attached to at most one alert.
type Result struct {
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	ModelFallback      bool     `json:"model_fallback"`
	Score              int      `json:"overall_score"`
	Recommendation     string   `json:"recommendation"`
	TechnicalSummary   string   `json:"technical_summary"`
	FundamentalSummary string   `json:"fundamental_summary"`
	SentimentSummary   string   `json:"sentiment_summary"`
	KeyReasons         []string `json:"key_reasons"`
	Confidence         string   `json:"confidence_level"`
	Failed             bool     `json:"failed"`
	Message            string   `json:"message,omitempty"`
}

const analysisPromptTemplate = `You are a seasoned equity analyst. Analyse the instrument below.

Instrument:
- Code: %s
- Current price: %s
- Price movement: %s

Return a structured result strictly in this JSON shape, with no other text:

{
    "overall_score": number (0-100),
    "recommendation": "one of Buy/Sell/Hold/Monitor",
    "technical_summary": "concise technical view",
    "fundamental_summary": "concise fundamental view",
    "sentiment_summary": "market sentiment view",
    "key_reasons": ["reason 1", "reason 2", "reason 3"],
    "confidence_level": "one of High/Medium/Low"
}`

// BuildPrompt renders the analysis prompt for a threshold breach.
func BuildPrompt(code string, price decimal.Decimal, direction string) string {
	movement := fmt.Sprintf("price at %s, no breach direction given", price.String())
	switch direction {
	case "UP":
		movement = fmt.Sprintf("price broke upward through its threshold, now at %s; assess momentum and continuation", price.String())
	case "DOWN":
		movement = fmt.Sprintf("price broke downward through its threshold, now at %s; assess the cause and support levels", price.String())
	}
	return fmt.Sprintf(analysisPromptTemplate, code, price.String(), movement)
}

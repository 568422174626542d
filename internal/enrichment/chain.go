package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Chain selects a provider by owner preference and walks its model
// candidates until one returns a usable structured result.
type Chain struct {
	providers map[string]Provider
	preferred string
	model     string
	timeout   time.Duration
	logger    zerolog.Logger
}

// ChainOptions parameterise the enrichment chain.
type ChainOptions struct {
	// Preferred is the provider id the owner configured.
	Preferred string
	// Model overrides the provider's default model when non-empty.
	Model string
	// Timeout bounds a single provider call.
	Timeout time.Duration
}

// NewChain builds a chain over the given provider implementations. Only
// providers with a usable credential should be registered.
func NewChain(opts ChainOptions, providers []Provider, logger zerolog.Logger) *Chain {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &Chain{
		providers: byName,
		preferred: opts.Preferred,
		model:     opts.Model,
		timeout:   timeout,
		logger:    logger.With().Str("component", "enrichment").Logger(),
	}
}

// Enrich produces structured commentary for a threshold breach. It never
// returns an error: hard failures come back as a Result with Failed=true so
// that the alert itself is never blocked on commentary.
func (c *Chain) Enrich(ctx context.Context, code string, price decimal.Decimal, direction string) Result {
	provider, ok := c.providers[c.preferred]
	if !ok {
		// Configuration error. Deliberately not retried against other
		// providers: substituting someone else's credential is worse
		// than an unenriched alert.
		return errorResult(c.preferred, fmt.Sprintf("%s API key not configured", c.preferred))
	}

	prompt := BuildPrompt(code, price, direction)
	candidates := modelCandidates(c.model, provider.Models())

	var lastErr error
	for _, model := range candidates {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		raw, err := provider.Complete(callCtx, prompt, model)
		cancel()

		if err != nil {
			errCode := classify(err)
			c.logger.Warn().
				Str("provider", provider.Name()).
				Str("model", model).
				Str("code", string(errCode)).
				Err(err).
				Msg("model attempt failed")

			switch errCode {
			case CodeAuthInvalid, CodeQuotaExhausted:
				// further model attempts cannot succeed
				return errorResult(provider.Name(), err.Error())
			default:
				lastErr = err
				continue
			}
		}

		result := c.normalize(raw, provider.Name(), model)
		result.ModelFallback = model != candidates[0]
		if result.ModelFallback {
			c.logger.Info().
				Str("provider", provider.Name()).
				Str("configured", candidates[0]).
				Str("model", model).
				Msg("配置的模型不可用，已自动切换")
		}
		return result
	}

	if lastErr == nil {
		lastErr = errors.New("no model candidates configured")
	}
	return errorResult(provider.Name(), fmt.Sprintf("all models exhausted: %s", lastErr.Error()))
}

// modelCandidates prepends the configured model to the provider's stable
// list, de-duplicated preserving order.
func modelCandidates(configured string, stable []string) []string {
	ordered := make([]string, 0, len(stable)+1)
	seen := make(map[string]bool, len(stable)+1)

	appendModel := func(m string) {
		m = normalizeModelName(m)
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		ordered = append(ordered, m)
	}

	appendModel(configured)
	for _, m := range stable {
		appendModel(m)
	}
	return ordered
}

// normalizeModelName lower-cases and hyphenates configured model names so
// that display names like "Gemini 1.5 Pro" match API identifiers.
func normalizeModelName(m string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m)), " ", "-")
}

var (
	fenceOpen  = regexp.MustCompile("(?m)^```(?:json|JSON)?\\s*\n?")
	fenceClose = regexp.MustCompile("\n?```\\s*$")
)

// stripCodeFence removes markdown code-fence wrapping around a JSON body.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = fenceOpen.ReplaceAllString(content, "")
	content = fenceClose.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

type analysisPayload struct {
	OverallScore       int      `json:"overall_score"`
	Recommendation     string   `json:"recommendation"`
	TechnicalSummary   string   `json:"technical_summary"`
	FundamentalSummary string   `json:"fundamental_summary"`
	SentimentSummary   string   `json:"sentiment_summary"`
	KeyReasons         []string `json:"key_reasons"`
	ConfidenceLevel    string   `json:"confidence_level"`
}

// normalize parses a raw provider response into a Result. A malformed body
// degrades to a best-effort low-confidence result instead of a failure.
func (c *Chain) normalize(raw, provider, model string) Result {
	cleaned := stripCodeFence(raw)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		c.logger.Warn().
			Str("provider", provider).
			Str("model", model).
			Err(err).
			Msg("provider response is not valid JSON; returning best-effort summary")
		return bestEffortResult(raw, provider, model)
	}

	return Result{
		Provider:           provider,
		Model:              model,
		Score:              payload.OverallScore,
		Recommendation:     payload.Recommendation,
		TechnicalSummary:   payload.TechnicalSummary,
		FundamentalSummary: payload.FundamentalSummary,
		SentimentSummary:   payload.SentimentSummary,
		KeyReasons:         payload.KeyReasons,
		Confidence:         payload.ConfidenceLevel,
	}
}

const rawSummaryLimit = 200

func bestEffortResult(raw, provider, model string) Result {
	summary := strings.TrimSpace(raw)
	if len(summary) > rawSummaryLimit {
		summary = summary[:rawSummaryLimit] + "..."
	}
	return Result{
		Provider:           provider,
		Model:              model,
		Score:              60,
		Recommendation:     "Monitor",
		TechnicalSummary:   summary,
		FundamentalSummary: "additional data required for a fundamental view",
		SentimentSummary:   "market sentiment needs further observation",
		KeyReasons:         []string{"analysis output was not well-formed", "manual review suggested"},
		Confidence:         "Low",
	}
}

func errorResult(provider, message string) Result {
	return Result{
		Provider:       provider,
		Score:          50,
		Recommendation: "Monitor",
		Confidence:     "Low",
		Failed:         true,
		Message:        message,
	}
}

// classify extracts the ErrorCode from a provider failure.
func classify(err error) ErrorCode {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeOther
}

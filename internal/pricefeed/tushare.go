package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TushareOptions parameterise the daily-quote fetcher.
type TushareOptions struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	AllowMock bool
}

// Tushare fetches daily close prices from the tushare pro API.
type Tushare struct {
	opts    TushareOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTushare constructs a tushare-backed price feed.
func NewTushare(opts TushareOptions, logger zerolog.Logger) *Tushare {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.tushare.pro"
	}

	return &Tushare{
		opts:    opts,
		logger:  logger.With().Str("component", "price_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Latest retrieves the most recent daily close for the instrument.
func (t *Tushare) Latest(ctx context.Context, code string) (Quote, error) {
	if code == "" {
		return Quote{}, errors.New("instrument code required")
	}
	if t.opts.Token == "" {
		if t.opts.AllowMock {
			return t.mockQuote(code), nil
		}
		return Quote{}, errors.New("pricefeed token not configured")
	}

	reqPayload := dailyRequest{
		APIName: "daily",
		Token:   t.opts.Token,
		Params:  dailyParams{TSCode: code},
		Fields:  "ts_code,trade_date,close",
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return Quote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("tushare api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payloadBytes)))
	}

	var dailyRes dailyResponse
	if err := json.Unmarshal(payloadBytes, &dailyRes); err != nil {
		return Quote{}, err
	}
	if dailyRes.Code != 0 {
		return Quote{}, fmt.Errorf("tushare api error (code %d): %s", dailyRes.Code, dailyRes.Msg)
	}

	closeIdx := -1
	for i, field := range dailyRes.Data.Fields {
		if field == "close" {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 {
		return Quote{}, errors.New("tushare response missing close field")
	}
	if len(dailyRes.Data.Items) == 0 {
		return Quote{}, ErrUnavailable
	}

	// 第一行即最近交易日
	row := dailyRes.Data.Items[0]
	if closeIdx >= len(row) {
		return Quote{}, errors.New("tushare row shorter than field list")
	}

	price, err := toDecimal(row[closeIdx])
	if err != nil {
		return Quote{}, fmt.Errorf("parse close price: %w", err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrUnavailable
	}

	return Quote{Code: code, Price: price, ObservedAt: time.Now().UTC()}, nil
}

// mockQuote derives a deterministic pseudo price from the code. Development
// aid only; guarded by AllowMock.
func (t *Tushare) mockQuote(code string) Quote {
	digits := make([]byte, 0, len(code))
	for _, r := range code {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}

	h := fnv.New32a()
	h.Write(digits)
	base := int64(h.Sum32()%100) + 10

	t.logger.Warn().Str("code", code).Msg("pricefeed token 未配置，返回模拟价格")
	return Quote{
		Code:       code,
		Price:      decimal.NewFromInt(base),
		ObservedAt: time.Now().UTC(),
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value), nil
	case string:
		return decimal.NewFromString(value)
	case json.Number:
		return decimal.NewFromString(value.String())
	case nil:
		return decimal.Decimal{}, ErrUnavailable
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected value type %T", v)
	}
}

type dailyParams struct {
	TSCode string `json:"ts_code"`
}

type dailyRequest struct {
	APIName string      `json:"api_name"`
	Token   string      `json:"token"`
	Params  dailyParams `json:"params"`
	Fields  string      `json:"fields,omitempty"`
}

type dailyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

var _ Feed = (*Tushare)(nil)

package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/jpillora/backoff"
)

// Client defaults
const (
	DefaultBaseURL  = "http://localhost:5000"
	DefaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	predictPath     = "/api/ml/predict"
)

// Errors returned by Predict
var (
	ErrPredictionFailed = errors.New("prediction failed")
	ErrEmptyWindow      = errors.New("empty window")
)

// bar is the wire form of an observation sent to the prediction service
type bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type request struct {
	Symbol string `json:"symbol,omitempty"`
	Bars   []bar  `json:"bars"`
}

type ohlc struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type prediction struct {
	core.Prediction
	FutureOHLC *ohlc `json:"future_ohlc"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client calls the external model service and implements core.Predictor
type Client struct {
	baseURL  string
	symbol   string
	attempts int
	http     *http.Client
	log      logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets the prediction service address
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithSymbol names the instrument in each request
func WithSymbol(symbol string) Option {
	return func(c *Client) {
		c.symbol = symbol
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithAttempts sets how many times a failed request is tried
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a prediction service client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		attempts: defaultAttempts,
		http:     &http.Client{Timeout: DefaultTimeout},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict posts the window to the service and decodes its forecast.
// Transport failures and 5xx answers are retried; a service that answers
// with success=false is not.
func (c *Client) Predict(ctx context.Context, window core.Window) (*core.Prediction, error) {
	if window.Len() == 0 {
		return nil, ErrEmptyWindow
	}

	body, err := json.Marshal(c.encode(window))
	if err != nil {
		return nil, fmt.Errorf("encode window: %w", err)
	}

	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		result, retryable, err := c.do(ctx, body)
		if err == nil {
			return result, nil
		}
		if !retryable || int(b.Attempt())+1 >= c.attempts {
			return nil, err
		}

		wait := b.Duration()
		c.log.WithError(err).Debugf("prediction request failed, retrying in %s", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) encode(window core.Window) request {
	bars := make([]bar, 0, window.Len())
	for _, o := range window {
		bars = append(bars, bar{
			Time:   o.Time.Unix(),
			Open:   o.Open,
			High:   o.High,
			Low:    o.Low,
			Close:  o.Close,
			Volume: o.Volume,
		})
	}
	return request{Symbol: c.symbol, Bars: bars}
}

func (c *Client) do(ctx context.Context, body []byte) (*core.Prediction, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, true, fmt.Errorf("%w: status %d", ErrPredictionFailed, resp.StatusCode)
		}
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, resp.StatusCode >= http.StatusInternalServerError, fmt.Errorf("%w: %s", ErrPredictionFailed, msg)
	}

	var p prediction
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, false, fmt.Errorf("decode prediction: %w", err)
	}

	result := p.Prediction
	result.Side = core.Side(strings.ToUpper(string(result.Side)))
	result.Confidence = core.ClampConfidence(result.Confidence)
	if p.FutureOHLC != nil {
		result.FutureOHLC = []core.Observation{{
			Open:  p.FutureOHLC.Open,
			High:  p.FutureOHLC.High,
			Low:   p.FutureOHLC.Low,
			Close: p.FutureOHLC.Close,
		}}
	}
	return &result, false, nil
}

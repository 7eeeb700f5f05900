// Package llmrules produces probability estimates and risk flags from
// an LLM's analysis of a market's settlement rules. Grounded on
// llm-client/src/{client,types}.rs from the original implementation:
// same request/response schema, same validation rules (confidence and
// uncertainty bounds, fact-claim provenance and URL allow-listing),
// same 429/timeout retry-with-backoff loop.
package llmrules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/signal"
	"github.com/kalshi-trading/core/pkg/boterrors"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// RiskLevel mirrors the four-level settlement-risk classification the
// LLM assigns to a market's rules.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// FactClaim is one atomic claim the model extracted from the rules
// text, optionally backed by a source URL.
type FactClaim struct {
	Claim               string  `json:"claim"`
	SourceURL           string  `json:"source_url,omitempty"`
	VerifiabilityScore  float64 `json:"verifiability_score"`
}

// Provenance is one source the model consulted while researching.
type Provenance struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	FetchedAtMs  int64  `json:"fetched_at_ts_ms"`
}

// Request is the analysis request sent to the model for one market.
type Request struct {
	RequestID         string
	MarketTicker      string
	EventTicker       string
	RulesPrimary      string
	RulesSecondary    string
	CandidateSnapshot any
	AllowedURLs       []string
	AsOfMs            int64
}

// Response is the model's structured analysis of a market's rules.
type Response struct {
	ResolutionSource      string       `json:"resolution_source"`
	DefinitionSummary     string       `json:"definition_summary"`
	EdgeCaseFlags         []string     `json:"edge_case_flags"`
	RiskOfMisresolution   RiskLevel    `json:"risk_of_misresolution"`
	FactClaims            []FactClaim  `json:"fact_claims"`
	Confidence            float64      `json:"confidence"`
	Uncertainty           float64      `json:"uncertainty"`
	AsOfMs                int64        `json:"as_of_ts_ms"`
	Provenance            []Provenance `json:"provenance"`
}

// Validate enforces the same schema-level invariants as the original
// research-response validator: bounded confidence/uncertainty,
// positive as_of timestamp, every fact claim's source URL present in
// provenance and within the request's URL allow-list.
func Validate(req Request, resp Response) error {
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return &boterrors.SchemaError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	if resp.Uncertainty < 0 || resp.Uncertainty > 1 {
		return &boterrors.SchemaError{Field: "uncertainty", Reason: "must be in [0,1]"}
	}
	if resp.AsOfMs <= 0 {
		return &boterrors.SchemaError{Field: "as_of_ts_ms", Reason: "must be positive"}
	}
	if len(resp.FactClaims) > 0 && len(resp.Provenance) == 0 {
		return &boterrors.SchemaError{Field: "fact_claims", Reason: "require at least one provenance entry"}
	}

	provenanceURLs := make(map[string]struct{}, len(resp.Provenance))
	for _, p := range resp.Provenance {
		provenanceURLs[p.URL] = struct{}{}
	}

	for _, c := range resp.FactClaims {
		if c.VerifiabilityScore < 0 || c.VerifiabilityScore > 1 {
			return &boterrors.SchemaError{Field: "verifiability_score", Reason: fmt.Sprintf("out of range for claim: %s", c.Claim)}
		}
		if c.SourceURL == "" {
			continue
		}
		if _, ok := provenanceURLs[c.SourceURL]; !ok {
			return &boterrors.SchemaError{Field: "fact_claims.source_url", Reason: fmt.Sprintf("missing from provenance: %s", c.SourceURL)}
		}
		if len(req.AllowedURLs) > 0 && !anyHasPrefix(c.SourceURL, req.AllowedURLs) {
			return &boterrors.SchemaError{Field: "fact_claims.source_url", Reason: fmt.Sprintf("not allow-listed: %s", c.SourceURL)}
		}
	}

	return nil
}

func anyHasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ToProbabilityEstimate derives a ProbabilityEstimate from a validated
// Response. Risk level widens the confidence interval: CRITICAL and
// HIGH findings are treated as low-confidence even when the model
// reports otherwise, since a flagged settlement ambiguity should never
// be traded on a tight probability band.
func ToProbabilityEstimate(resp Response, baseP float64) signal.ProbabilityEstimate {
	confidence := resp.Confidence * (1.0 - resp.Uncertainty)

	switch resp.RiskOfMisresolution {
	case RiskCritical:
		confidence *= 0.1
	case RiskHigh:
		confidence *= 0.4
	case RiskMedium:
		confidence *= 0.75
	}

	spread := (1.0 - confidence) * 0.5
	pLow := clamp01(baseP - spread)
	pHigh := clamp01(baseP + spread)

	return signal.ProbabilityEstimate{
		P:          baseP,
		Confidence: clamp01(confidence),
		PLow:       pLow,
		PHigh:      pHigh,
		AsOfMs:     resp.AsOfMs,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Client calls the Anthropic Messages API and parses the model's
// structured rules-analysis response, retrying on rate limiting and
// timeouts the same way the teacher's market metadata client backs
// off on transient REST failures.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	maxRetries int
	logger     *zap.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// NewClient builds a Client with the given configuration, applying
// defaults for any zero-valued fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}
}

const systemPromptTemplate = `You are a high-precision research assistant for a prediction market trading bot.
Your goal is to analyze market rules and determine the likely resolution outcome or identify risks.
You must output strictly valid JSON matching the schema described below.
Do NOT output markdown fences or conversational text. Output JUST the JSON object.

Required JSON fields: resolution_source (string), definition_summary (string),
edge_case_flags (array of strings), risk_of_misresolution (one of LOW, MEDIUM, HIGH, CRITICAL),
fact_claims (array of {claim, source_url, verifiability_score}), confidence (0.0-1.0),
uncertainty (0.0-1.0), as_of_ts_ms (integer), provenance (array of {url, title, fetched_at_ts_ms}).`

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	System    string              `json:"system"`
	Messages  []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

// Research sends one Request to the model and returns a validated
// Response, retrying up to maxRetries times on HTTP 429 and network
// timeouts with a linear 150ms*(attempt) backoff.
func (c *Client) Research(ctx context.Context, req Request) (Response, error) {
	userPrompt := map[string]any{
		"task":             "analyze_market_rules",
		"market_ticker":    req.MarketTicker,
		"event_ticker":     req.EventTicker,
		"rules":            req.RulesPrimary,
		"rules_secondary":  req.RulesSecondary,
		"context":          req.CandidateSnapshot,
		"allowed_sources":  req.AllowedURLs,
		"current_time_ms":  req.AsOfMs,
	}
	userPromptJSON, err := json.Marshal(userPrompt)
	if err != nil {
		return Response{}, &boterrors.SchemaError{Field: "request", Reason: err.Error(), Err: err}
	}

	payload := anthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    systemPromptTemplate,
		Messages:  []anthropicMessage{{Role: "user", Content: string(userPromptJSON)}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &boterrors.SchemaError{Field: "payload", Reason: err.Error(), Err: err}
	}

	var attempt int
	for {
		resp, err := c.send(ctx, body)
		if err != nil {
			if attempt < c.maxRetries && isRetryableErr(err) {
				attempt++
				c.backoff(ctx, attempt)
				continue
			}
			return Response{}, err
		}
		if resp.retryAfter429 && attempt < c.maxRetries {
			attempt++
			c.backoff(ctx, attempt)
			continue
		}
		if resp.err != nil {
			return Response{}, resp.err
		}

		parsed, err := parseResponse(resp.body)
		if err != nil {
			return Response{}, err
		}
		if err := Validate(req, parsed); err != nil {
			return Response{}, err
		}
		return parsed, nil
	}
}

type sendResult struct {
	body          []byte
	retryAfter429 bool
	err           error
}

func (c *Client) send(ctx context.Context, body []byte) (sendResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return sendResult{}, &boterrors.TransportError{Op: "llm_research", Err: err}
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return sendResult{}, &boterrors.TransportError{Op: "llm_research", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sendResult{}, &boterrors.TransportError{Op: "llm_research", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return sendResult{retryAfter429: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sendResult{err: &boterrors.ExchangeError{Status: resp.StatusCode, Body: string(respBody)}}, nil
	}

	return sendResult{body: respBody}, nil
}

// isRetryableErr treats any transport-level failure (connection
// refused, timeout, context deadline) as retryable; HTTP error
// statuses other than 429 are surfaced immediately via sendResult.err.
func isRetryableErr(err error) bool {
	_, ok := err.(*boterrors.TransportError)
	return ok
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(150*attempt) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// parseResponse extracts the text content block from the Anthropic
// message envelope and decodes the embedded JSON object, tolerating
// incidental wrapper text around the JSON body.
func parseResponse(raw []byte) (Response, error) {
	var envelope anthropicResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Response{}, &boterrors.SchemaError{Field: "content", Reason: "invalid envelope", Err: err}
	}

	var text string
	for _, block := range envelope.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return Response{}, &boterrors.SchemaError{Field: "content", Reason: "missing text content block"}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Response{}, &boterrors.SchemaError{Field: "content", Reason: "no JSON object found in response text"}
	}

	var resp Response
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return Response{}, &boterrors.SchemaError{Field: "content", Reason: "malformed research response JSON", Err: err}
	}
	return resp, nil
}

// NewRequestID generates a fresh request id for a Research call.
func NewRequestID() string {
	return uuid.New().String()
}

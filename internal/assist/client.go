package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/khiari-mohamed/approchement-backend/internal/assist/ratelimit"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// DefaultCallTimeout bounds each external call. There are no retries: when a
// call times out or fails, the deterministic fallback is the retry strategy.
const DefaultCallTimeout = 5 * time.Second

// ClientConfig configures the HTTP assistance client.
type ClientConfig struct {
	// BaseURL of the assistance service. Empty means the capability is not
	// configured and every call reports ErrUnavailable.
	BaseURL string
	// APIKey sent as a bearer token when non-empty.
	APIKey string
	// CallTimeout bounds each request; DefaultCallTimeout when zero.
	CallTimeout time.Duration
	// Limiter gates every outbound call. A shared instance keeps the global
	// rate bounded across concurrent reconciliation runs.
	Limiter *ratelimit.SlidingWindow
	// Metrics receives per-call accounting. Optional.
	Metrics *Metrics

	Logger logger.Logger
}

// Client calls the external assistance service over HTTP. It implements both
// LabelComparer and TransactionCategorizer, clamping out-of-range scores and
// reporting every failure as recoverable.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.SlidingWindow
	metrics *Metrics
	log     logger.Logger
}

// NewClient creates an assistance client. A nil limiter gets the
// conservative default of 8 calls per minute.
func NewClient(config ClientConfig) *Client {
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	limiter := config.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(ratelimit.DefaultMaxCalls, ratelimit.DefaultWindow)
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		metrics: metrics,
		log:     log.WithComponent("assist_client"),
	}
}

// Metrics returns the accumulator attached to this client.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

type compareRequest struct {
	LabelA string `json:"label_a"`
	LabelB string `json:"label_b"`
}

type compareResponse struct {
	Score float64 `json:"score"`
}

// CompareLabels queries the external service for a similarity score. On any
// failure it returns the deterministic TokenSortRatio with Fallback set,
// never an error that would abort the run.
func (c *Client) CompareLabels(ctx context.Context, a, b string) (LabelComparison, error) {
	if c.baseURL == "" {
		c.metrics.RecordFallback()
		return LabelComparison{Score: TokenSortRatio(a, b), Fallback: true}, nil
	}

	c.limiter.Wait()
	start := time.Now()

	var resp compareResponse
	err := c.post(ctx, "/v1/labels/compare", compareRequest{LabelA: a, LabelB: b}, &resp)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordFailure(elapsed)
		c.log.WithError(err).Warn("label comparison degraded to deterministic similarity")
		return LabelComparison{Score: TokenSortRatio(a, b), Fallback: true, ResponseTime: elapsed}, nil
	}

	score := resp.Score
	if score < 0 || score > 1 {
		// The model occasionally returns scores outside its own contract.
		c.metrics.RecordClamp()
		score = clamp01(score)
	}
	c.metrics.RecordSuccess(elapsed)
	return LabelComparison{Score: score, ResponseTime: elapsed}, nil
}

type categorizeRequest struct {
	Description string `json:"description"`
}

type categorizeResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

var validCategories = map[string]bool{
	CategoryBankFees:         true,
	CategoryIncomingTransfer: true,
	CategoryOutgoingTransfer: true,
	CategoryCheque:           true,
	CategoryChequeDeposit:    true,
	CategoryDirectDebit:      true,
	CategoryCardPayment:      true,
	CategoryOther:            true,
}

// CategorizeTransaction asks the external service for a category, falling
// back to the keyword classifier on failure. Categories outside the known
// set are treated as hallucinations and replaced with AUTRE.
func (c *Client) CategorizeTransaction(ctx context.Context, description string) (Categorization, error) {
	if c.baseURL == "" {
		c.metrics.RecordFallback()
		return CategorizeByKeywords(description), nil
	}

	c.limiter.Wait()
	start := time.Now()

	var resp categorizeResponse
	err := c.post(ctx, "/v1/transactions/categorize", categorizeRequest{Description: description}, &resp)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordFailure(elapsed)
		c.log.WithError(err).Warn("categorization degraded to keyword classifier")
		return CategorizeByKeywords(description), nil
	}

	if !validCategories[resp.Category] {
		c.metrics.RecordClamp()
		resp.Category = CategoryOther
		resp.Confidence = 0.0
	}
	c.metrics.RecordSuccess(elapsed)
	return Categorization{Category: resp.Category, Confidence: clamp01(resp.Confidence)}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.CapabilityError(apperrors.CodeBadResponse, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.CapabilityError(apperrors.CodeUnavailable, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.CapabilityError(apperrors.CodeTimeout, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.CapabilityError(apperrors.CodeBadResponse, path,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.CapabilityError(apperrors.CodeBadResponse, path, err)
	}
	return nil
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

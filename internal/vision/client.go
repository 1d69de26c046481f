// Package vision provides a client for the vision service's multimodal retrieval
// (vectorizeImage / vectorizeText) API, with bounded retries on transient failures.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/formbricks/image-embedding-skill/internal/observability"
	"github.com/formbricks/image-embedding-skill/internal/skillerrors"
)

var (
	// ErrMissingEndpoint is returned when NewClient is called without an endpoint.
	ErrMissingEndpoint = errors.New("vision: endpoint is required")
	// ErrMissingAPIKey is returned when NewClient is called without a subscription key.
	ErrMissingAPIKey = errors.New("vision: api key is required")
	// ErrMissingAPIVersion is returned when NewClient is called without an api-version.
	ErrMissingAPIVersion = errors.New("vision: api version is required")
	// ErrNoVectorInResponse is returned when a 200 response does not carry a vector array.
	ErrNoVectorInResponse = errors.New("vision: no vector in response")
)

const (
	imagePath = "/computervision/retrieval:vectorizeImage"
	textPath  = "/computervision/retrieval:vectorizeText"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

	// A 1024-dim float vector is ~20 KB of JSON; anything near this cap is not a vectorize response.
	maxResponseBytes = 10 << 20

	defaultTimeout      = 30 * time.Second
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 20 * time.Second
)

// Operation names, also used as the "operation" metric attribute.
const (
	OperationVectorizeImage = "vectorize_image"
	OperationVectorizeText  = "vectorize_text"
)

// Outcome names for the "outcome" metric attribute.
const (
	outcomeSuccess         = "success"
	outcomeUpstreamError   = "upstream_error"
	outcomeNetworkError    = "network_error"
	outcomeInvalidResponse = "invalid_response"
)

// Options configures the Client.
type Options struct {
	// Endpoint is the vision resource base URL, e.g. https://<name>.cognitiveservices.azure.com/
	Endpoint string
	// APIKey is sent as the Ocp-Apim-Subscription-Key header.
	APIKey string
	// APIVersion is the api-version query value.
	APIVersion string
	// ModelVersion is the optional model-version query value. Empty omits it.
	ModelVersion string
	// Timeout bounds a single attempt (default: 30 seconds).
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt. 0 disables retrying.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the randomized exponential backoff (defaults: 1s, 20s).
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Transport overrides the pooled transport (tests). It is still wrapped for tracing.
	Transport http.RoundTripper
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil (metrics disabled).
	Metrics observability.VisionMetrics
}

// Client calls the vision retrieval API. It is safe for concurrent use and is meant
// to be created once at startup so connections are pooled across requests.
type Client struct {
	baseURL      string
	apiKey       string
	apiVersion   string
	modelVersion string
	httpClient   *retryablehttp.Client
	logger       *slog.Logger
	metrics      observability.VisionMetrics
}

type vectorizeImageRequest struct {
	URL string `json:"url"`
}

type vectorizeTextRequest struct {
	Text string `json:"text"`
}

type vectorizeResponse struct {
	ModelVersion string    `json:"modelVersion"` //nolint:tagliatelle // upstream contract
	Vector       []float64 `json:"vector"`
}

// NewClient creates a vision client with a retrying, pooled HTTP client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if opts.APIVersion == "" {
		return nil, ErrMissingAPIVersion
	}

	base, err := url.Parse(strings.TrimRight(opts.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("vision: parse endpoint: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = defaultRetryWaitMin
	}

	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = defaultRetryWaitMax
	}

	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		pooled := cleanhttp.DefaultPooledTransport()
		pooled.MaxIdleConns = 100
		pooled.MaxIdleConnsPerHost = 20
		transport = pooled
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Backoff = JitterBackoff
	retryClient.CheckRetry = retryPolicy
	// Hand back the last response so non-200 bodies can be reported to the caller.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = logger

	client := &Client{
		baseURL:      base.String(),
		apiKey:       opts.APIKey,
		apiVersion:   opts.APIVersion,
		modelVersion: opts.ModelVersion,
		httpClient:   retryClient,
		logger:       logger,
		metrics:      opts.Metrics,
	}

	retryClient.RequestLogHook = client.onAttempt

	return client, nil
}

// VectorizeImage returns the embedding for the image at imageURL. The vector is returned
// exactly as the service sent it; its dimensionality is not checked.
func (c *Client) VectorizeImage(ctx context.Context, imageURL string) ([]float64, error) {
	return c.vectorize(ctx, OperationVectorizeImage, imagePath, vectorizeImageRequest{URL: imageURL})
}

// VectorizeText returns the embedding for text in the same vector space as VectorizeImage.
func (c *Client) VectorizeText(ctx context.Context, text string) ([]float64, error) {
	return c.vectorize(ctx, OperationVectorizeText, textPath, vectorizeTextRequest{Text: text})
}

func (c *Client) operationURL(path string) string {
	params := url.Values{}
	params.Set("api-version", c.apiVersion)

	if c.modelVersion != "" {
		params.Set("model-version", c.modelVersion)
	}

	return c.baseURL + path + "?" + params.Encode()
}

func (c *Client) vectorize(ctx context.Context, operation, path string, payload any) ([]float64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.operationURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, operation, outcomeNetworkError, start)
		c.logger.ErrorContext(ctx, "vision request failed", "operation", operation, "error", err)

		return nil, skillerrors.NewNetworkError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WarnContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(ctx, operation, outcomeNetworkError, start)

		return nil, skillerrors.NewNetworkError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		c.record(ctx, operation, outcomeUpstreamError, start)
		c.logger.ErrorContext(ctx, "vision service error",
			"operation", operation,
			"status", resp.StatusCode,
			"body", string(respBody),
		)

		return nil, skillerrors.NewUpstreamError(resp.StatusCode, string(respBody))
	}

	var parsed vectorizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.record(ctx, operation, outcomeInvalidResponse, start)

		return nil, fmt.Errorf("%w: %w", ErrNoVectorInResponse, err)
	}

	if parsed.Vector == nil {
		c.record(ctx, operation, outcomeInvalidResponse, start)

		return nil, ErrNoVectorInResponse
	}

	c.record(ctx, operation, outcomeSuccess, start)
	c.logger.DebugContext(ctx, "vision vector received",
		"operation", operation,
		"dimensions", len(parsed.Vector),
		"model_version", parsed.ModelVersion,
	)

	return parsed.Vector, nil
}

// retryPolicy retries connection errors and the transient status class (429, 5xx except 501);
// any other status returns immediately.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil || resp == nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	if resp.StatusCode == http.StatusOK {
		return false, nil
	}

	return skillerrors.NewUpstreamError(resp.StatusCode, "").Retryable(), nil
}

func (c *Client) record(ctx context.Context, operation, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}

	c.metrics.RecordVisionRequest(ctx, operation, outcome, time.Since(start))
}

// onAttempt is the retryablehttp RequestLogHook; attempt 0 is the first try.
func (c *Client) onAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if attempt == 0 || c.metrics == nil {
		return
	}

	c.metrics.RecordVisionRetry(req.Context(), operationForPath(req.URL.Path))
}

func operationForPath(path string) string {
	switch {
	case strings.HasSuffix(path, textPath):
		return OperationVectorizeText
	case strings.HasSuffix(path, imagePath):
		return OperationVectorizeImage
	default:
		return "unknown"
	}
}

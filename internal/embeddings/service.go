package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the HTTP extractor client.
type Config struct {
	// BaseURL is the base URL of the extractor service.
	// Default: "http://localhost:8080"
	BaseURL string

	// Model names the extractor model, reported in metrics.
	// Default: "eres2netv2"
	Model string

	// Dimension is the expected feature vector dimension.
	// Default: 192
	Dimension int

	// Timeout bounds a single extraction request.
	// Default: 30s
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Model == "" {
		c.Model = "eres2netv2"
	}
	if c.Dimension == 0 {
		c.Dimension = 192
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service extracts voice features by calling the extractor's HTTP API.
// The extractor accepts raw audio bytes and returns a JSON body of the form
// {"embedding": [...]}.
type Service struct {
	config  Config
	client  *http.Client
	metrics *Metrics
}

// NewService creates an extractor client with the given configuration.
func NewService(config Config) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		metrics: NewMetrics(zap.NewNop()),
	}, nil
}

// extractResponse is the response body of the extractor's /extract endpoint.
type extractResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Dimension returns the expected feature vector dimension.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// Extract returns the feature vector for one audio clip.
func (s *Service) Extract(ctx context.Context, audio []byte) ([]float32, error) {
	start := time.Now()
	var extErr error
	defer func() {
		s.metrics.RecordExtraction(ctx, s.config.Model, time.Since(start), len(audio), extErr)
	}()

	if len(audio) == 0 {
		extErr = fmt.Errorf("%w: audio cannot be empty", ErrEmptyInput)
		return nil, extErr
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/extract", bytes.NewReader(audio))
	if err != nil {
		extErr = fmt.Errorf("creating request: %w", err)
		return nil, extErr
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		extErr = fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		return nil, extErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		extErr = fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, string(respBody))
		return nil, extErr
	}

	var body extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		extErr = fmt.Errorf("decoding response: %w", err)
		return nil, extErr
	}

	if len(body.Embedding) == 0 {
		extErr = fmt.Errorf("%w: empty response", ErrExtractionFailed)
		return nil, extErr
	}
	if len(body.Embedding) != s.config.Dimension {
		extErr = fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(body.Embedding), s.config.Dimension)
		return nil, extErr
	}

	return body.Embedding, nil
}

// Ensure Service implements Extractor.
var _ Extractor = (*Service)(nil)

package credential

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

	"github.com/yegors/voice-agent/pkg/logger"
)

// CreateWebCallPath is appended to the backend base URL
const CreateWebCallPath = "/create-web-call"

const (
	// maxResponseBytes caps how much of a backend response is read
	maxResponseBytes   = 64 << 10
	// maxLoggedBodyBytes caps the error body kept in logs and StatusError
	maxLoggedBodyBytes = 512
)

// ErrMissingConfig is returned when the agent id or backend URL is empty
var ErrMissingConfig = errors.New("agent id and backend base URL are required")

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Credential is the short-lived access credential for one call attempt.
// AccessToken is empty when the backend response did not carry one.
type Credential struct {
	AccessToken string `json:"access_token"`
	CallID      string `json:"call_id,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
}

type createWebCallRequest struct {
	AgentID string `json:"agent_id"`
}

// Fetcher requests access credentials from the backend
type Fetcher struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewFetcher creates a new credential fetcher. A zero timeout leaves the
// request unbounded.
func NewFetcher(timeout time.Duration, logger *logger.Logger) *Fetcher {
	return NewFetcherWithClient(&http.Client{Timeout: timeout}, logger)
}

// NewFetcherWithClient creates a fetcher that uses the given HTTP client
func NewFetcherWithClient(client *http.Client, logger *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: client,
		logger:     logger.Named("credential-fetcher"),
	}
}

// Fetch issues a single POST to {backendBaseURL}/create-web-call. There are
// no retries; the caller decides what a failure means.
func (f *Fetcher) Fetch(ctx context.Context, agentID, backendBaseURL string) (*Credential, error) {
	if agentID == "" || backendBaseURL == "" {
		return nil, ErrMissingConfig
	}

	jsonData, err := json.Marshal(createWebCallRequest{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create-web-call request: %w", err)
	}

	apiURL := strings.TrimRight(backendBaseURL, "/") + CreateWebCallPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	f.logger.Debug("Requesting access credential",
		logger.String("url", apiURL),
		logger.String("agent_id", agentID))

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := truncate(string(bodyBytes), maxLoggedBodyBytes)
		f.logger.Error("Credential request failed",
			logger.Int("status_code", resp.StatusCode),
			logger.String("response_body", body),
			logger.Duration("duration", time.Since(start)))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	var cred Credential
	if err := json.Unmarshal(bodyBytes, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode create-web-call response: %w", err)
	}

	// The token itself is never logged
	f.logger.Info("Access credential received",
		logger.String("call_id", cred.CallID),
		logger.Bool("has_token", cred.AccessToken != ""),
		logger.Duration("duration", time.Since(start)))

	return &cred, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

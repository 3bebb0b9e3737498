// Package probe implements a worker's side of identifier testing: an
// Oracle that classifies one full identifier against an external HTTP
// endpoint, and an Engine that expands a dispatched base prefix into
// its full identifier space and classifies every member with bounded
// concurrency and backoff.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VerdictOutcome is an oracle's terminal classification of one full
// identifier, omitting the NotFound case which never reaches a caller
// (see ErrNotFound).
type VerdictOutcome string

const (
	VerdictSuccess       VerdictOutcome = "success"
	VerdictNotEmbeddable VerdictOutcome = "not_embeddable"
)

// Verdict is the result of successfully classifying a full identifier.
type Verdict struct {
	Outcome    VerdictOutcome
	Title      string
	AuthorName string
	AuthorURL  string
}

// ErrNotFound means the oracle has no record of the identifier at all.
// It is not an engine failure and must never be surfaced in a result
// batch; the caller suppresses it.
var ErrNotFound = errors.New("probe: identifier not found")

// TransientError wraps an oracle failure worth retrying: network
// errors, request timeouts, and response codes that don't cleanly
// classify the identifier one way or the other.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("probe: transient failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// OracleConfig controls how Oracle classifies identifiers against an
// external embed endpoint.
type OracleConfig struct {
	// Endpoint is an HTTP URL template; %s is replaced with the full
	// identifier being probed.
	Endpoint string

	// UserAgent is sent with every request. The reference client sends
	// a fixed string; oracles that gate on it will reject anything else.
	UserAgent string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// DefaultOracleConfig returns production defaults for probing an
// oEmbed-shaped endpoint.
func DefaultOracleConfig(endpoint string) OracleConfig {
	return OracleConfig{
		Endpoint:  endpoint,
		UserAgent: "bruty",
		Timeout:   10 * time.Second,
	}
}

// Oracle classifies full identifiers by probing an external HTTP embed
// endpoint and decoding metadata from a successful response.
type Oracle struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

// NewOracle builds an Oracle from cfg.
func NewOracle(cfg OracleConfig) (*Oracle, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("probe: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultOracleConfig(cfg.Endpoint).Timeout
	}
	return &Oracle{
		client:    &http.Client{Timeout: timeout},
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
	}, nil
}

// oEmbedResponse is the subset of the oEmbed response body bruty reads.
// Fields absent from the response decode to their zero value.
type oEmbedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
}

// Classify probes id against the oracle's endpoint. A nil error with a
// non-nil Verdict means the identifier is a positive (Success or
// NotEmbeddable). ErrNotFound means the identifier does not exist.
// Any other error is a *TransientError and should be retried.
func (o *Oracle) Classify(ctx context.Context, id string) (*Verdict, error) {
	url := fmt.Sprintf(o.endpoint, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read body: %w", err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var fields oEmbedResponse
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, &TransientError{Err: fmt.Errorf("decode oEmbed response: %w", err)}
		}
		return &Verdict{
			Outcome:    VerdictSuccess,
			Title:      fields.Title,
			AuthorName: fields.AuthorName,
			AuthorURL:  fields.AuthorURL,
		}, nil
	case http.StatusUnauthorized:
		return &Verdict{Outcome: VerdictNotEmbeddable}, nil
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &TransientError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

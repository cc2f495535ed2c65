package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/leadforge/truthtable-backend/internal/normalize"
	"github.com/leadforge/truthtable-backend/internal/pkg/httpx"
	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// providerBatchMax is Apollo's documented per-request cap for bulk endpoints.
const providerBatchMax = 10

const (
	peopleBulkMatchPath = "/people/bulk_match"
	orgBulkEnrichPath   = "/organizations/bulk_enrich"
)

// ErrRetriesExhausted is returned when a request burns the whole retry
// budget on rate limits, server errors, or timeouts.
var ErrRetriesExhausted = errors.New("apollo: request failed after all retry attempts")

// APIError is a terminal provider failure (non-retryable status, network
// error, or a response violating the positional-match contract).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("apollo api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("apollo api error: %s", e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Client enriches records through Apollo's bulk endpoints. Both methods
// return a same-length, same-order slice; a group-level provider failure is
// attached to the affected records as an error marker instead of aborting
// the whole list.
type Client interface {
	EnrichPeople(ctx context.Context, records []types.Record) ([]types.Record, error)
	EnrichOrganizations(ctx context.Context, records []types.Record) ([]types.Record, error)
}

type Options struct {
	BaseURL        string
	APIKey         string
	BatchSize      int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client

	// Sleep is stubbed in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

type client struct {
	log            *logger.Logger
	baseURL        string
	apiKey         string
	batchSize      int
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	httpClient     *http.Client
	sleep          func(time.Duration)
}

// NewClient builds a Client from the environment (APOLLO_API_KEY required).
func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("APOLLO_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing APOLLO_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("APOLLO_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.apollo.io/api/v1"
	}
	return NewClientWithOptions(log, Options{BaseURL: baseURL, APIKey: apiKey})
}

func NewClientWithOptions(log *logger.Logger, opts Options) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("apollo api key required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.apollo.io/api/v1"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = providerBatchMax
	}
	if opts.BatchSize > providerBatchMax {
		opts.BatchSize = providerBatchMax
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &client{
		log:            log.With("service", "ApolloClient"),
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		batchSize:      opts.BatchSize,
		timeout:        opts.Timeout,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		httpClient:     opts.HTTPClient,
		sleep:          opts.Sleep,
	}, nil
}

func (c *client) doOnce(ctx context.Context, path string, payload any, timeout time.Duration) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := readBody(resp)
	if readErr != nil {
		return resp, nil, readErr
	}
	return resp, raw, nil
}

// do runs one logical request through the retry state machine: 200 is
// terminal success; 429 and 5xx back off and retry; a timeout backs off,
// retries, and widens the per-request timeout by 50%; any other 4xx or a
// network failure is terminal.
func (c *client) do(ctx context.Context, path string, payload any, out any) error {
	timeout := c.timeout

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, payload, timeout)
		if err != nil {
			if isTimeout(err) && ctx.Err() == nil {
				backoff := httpx.Backoff(c.initialBackoff, c.maxBackoff, attempt)
				c.log.Warn("Apollo request timed out, retrying",
					"path", path,
					"attempt", attempt+1,
					"max_retries", c.maxRetries,
					"sleep", backoff.String(),
					"next_timeout", (timeout * 3 / 2).String(),
				)
				c.sleep(backoff)
				timeout = timeout * 3 / 2
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &APIError{Message: fmt.Sprintf("request failed: %v", err)}
		}

		if resp.StatusCode == http.StatusOK {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", uErr)}
			}
			return nil
		}

		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			backoff := httpx.RetryAfterDuration(resp, httpx.Backoff(c.initialBackoff, c.maxBackoff, attempt), c.maxBackoff)
			c.log.Warn("Apollo request retrying",
				"path", path,
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"sleep", backoff.String(),
			)
			c.sleep(backoff)
			continue
		}

		return &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	return fmt.Errorf("%w (%d attempts to %s)", ErrRetriesExhausted, c.maxRetries, path)
}

// EnrichPeople calls the bulk match endpoint in capped groups and merges
// person (and nested organization) fields onto each matched record.
func (c *client) EnrichPeople(ctx context.Context, records []types.Record) ([]types.Record, error) {
	out := make([]types.Record, 0, len(records))
	groups := chunkRecords(records, c.batchSize)
	c.log.Info("Enriching people", "records", len(records), "batch_size", c.batchSize, "groups", len(groups))

	for i, group := range groups {
		payload := peoplePayload(group)
		var resp matchResponse[personMatch]
		if err := c.do(ctx, peopleBulkMatchPath, payload, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("People batch failed", "batch", i+1, "error", err.Error())
			out = append(out, markFailed(group, err)...)
			continue
		}
		merged, err := applyPeopleMatches(group, resp.Matches)
		if err != nil {
			c.log.Error("People batch response misaligned", "batch", i+1, "error", err.Error())
			out = append(out, markFailed(group, err)...)
			continue
		}
		out = append(out, merged...)
	}
	c.log.Info("People enrichment complete", "records", len(out))
	return out, nil
}

// EnrichOrganizations calls the bulk enrich endpoint, which accepts only a
// domain list. Each group is split into domain-bearing records (sent),
// company-name-only records (passed through), and the rest; a group with no
// resolvable domain skips the provider call entirely.
func (c *client) EnrichOrganizations(ctx context.Context, records []types.Record) ([]types.Record, error) {
	out := make([]types.Record, 0, len(records))
	groups := chunkRecords(records, c.batchSize)
	c.log.Info("Enriching organizations", "records", len(records), "batch_size", c.batchSize, "groups", len(groups))

	for i, group := range groups {
		withDomain, domains, passthrough := splitOrgEligible(group)

		if len(domains) == 0 {
			if len(group) > 0 {
				c.log.Debug("No resolvable domains in batch, skipping org enrichment", "batch", i+1)
			}
			out = append(out, group...)
			continue
		}

		var resp matchResponse[companyMatch]
		if err := c.do(ctx, orgBulkEnrichPath, orgPayload{Domains: domains}, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("Organization batch failed", "batch", i+1, "error", err.Error())
			out = append(out, markFailed(group, err)...)
			continue
		}
		merged, err := applyCompanyMatches(withDomain, resp.Matches)
		if err != nil {
			c.log.Error("Organization batch response misaligned", "batch", i+1, "error", err.Error())
			out = append(out, markFailed(group, err)...)
			continue
		}
		out = append(out, merged...)
		out = append(out, passthrough...)
	}
	c.log.Info("Organization enrichment complete", "records", len(out))
	return out, nil
}

type orgPayload struct {
	Domains []string `json:"domains"`
}

type personDetail struct {
	FirstName          string `json:"first_name,omitempty"`
	LastName           string `json:"last_name,omitempty"`
	Email              string `json:"email,omitempty"`
	OrganizationDomain string `json:"organization_domain,omitempty"`
	OrganizationName   string `json:"organization_name,omitempty"`
}

type peopleDetails struct {
	Details []personDetail `json:"details"`
}

func peoplePayload(group []types.Record) peopleDetails {
	details := make([]personDetail, 0, len(group))
	for _, rec := range group {
		d := personDetail{
			FirstName: strings.TrimSpace(rec[types.ColFirstName]),
			LastName:  strings.TrimSpace(rec[types.ColLastName]),
			Email:     rec.Email(),
		}
		if rec.Has(types.ColWebsite) {
			d.OrganizationDomain = strings.TrimSpace(rec[types.ColWebsite])
		} else if rec.Has(types.ColCompanyName) {
			d.OrganizationName = strings.TrimSpace(rec[types.ColCompanyName])
		}
		details = append(details, d)
	}
	return peopleDetails{Details: details}
}

// splitOrgEligible partitions a group for the bulk enrich endpoint. The
// returned domains slice is positionally aligned with withDomain.
func splitOrgEligible(group []types.Record) (withDomain []types.Record, domains []string, passthrough []types.Record) {
	for _, rec := range group {
		domain := ""
		if rec.Has(types.ColWebsite) {
			domain = normalize.ExtractDomain(rec[types.ColWebsite])
		}
		if domain != "" {
			withDomain = append(withDomain, rec)
			domains = append(domains, domain)
		} else {
			passthrough = append(passthrough, rec)
		}
	}
	return withDomain, domains, passthrough
}

type matchResponse[T any] struct {
	Matches []*T `json:"matches"`
}

func applyPeopleMatches(group []types.Record, matches []*personMatch) ([]types.Record, error) {
	if len(matches) > len(group) {
		return nil, &APIError{Message: fmt.Sprintf("provider returned %d matches for %d requested records", len(matches), len(group))}
	}
	out := make([]types.Record, len(group))
	for i, rec := range group {
		merged := rec.Clone()
		if i < len(matches) && matches[i] != nil {
			applyFields(merged, mapPersonMatch(matches[i]))
			if matches[i].Organization != nil {
				applyFields(merged, mapCompanyMatch(matches[i].Organization))
			}
		}
		out[i] = merged
	}
	return out, nil
}

func applyCompanyMatches(group []types.Record, matches []*companyMatch) ([]types.Record, error) {
	if len(matches) > len(group) {
		return nil, &APIError{Message: fmt.Sprintf("provider returned %d matches for %d requested domains", len(matches), len(group))}
	}
	out := make([]types.Record, len(group))
	for i, rec := range group {
		merged := rec.Clone()
		if i < len(matches) && matches[i] != nil {
			applyFields(merged, mapCompanyMatch(matches[i]))
		}
		out[i] = merged
	}
	return out, nil
}

func applyFields(rec types.Record, fields map[string]string) {
	for k, v := range fields {
		rec[k] = v
	}
}

func markFailed(group []types.Record, err error) []types.Record {
	out := make([]types.Record, len(group))
	for i, rec := range group {
		marked := rec.Clone()
		marked[types.ColEnrichmentError] = err.Error()
		out[i] = marked
	}
	return out
}

func chunkRecords(records []types.Record, size int) [][]types.Record {
	if size <= 0 {
		size = providerBatchMax
	}
	var groups [][]types.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		groups = append(groups, records[start:end])
	}
	return groups
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// requestTimeout bounds a single fetch or patch against the remote
// document store.
const requestTimeout = 10 * time.Second

// ClientConfig contains the remote document connection settings.
type ClientConfig struct {
	// DocumentURL is the full REST URL of the gate document.
	DocumentURL string

	// APIKey, when set, is appended as a key query parameter.
	APIKey string

	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string
}

// Client talks to the remote gate document over its document-store REST
// interface. The document carries one boolean field per signal; values
// are read with an authenticated GET and written with a PATCH
// restricted to a single field path.
type Client struct {
	httpClient  *http.Client
	documentURL string
	apiKey      string
	bearerToken string
}

// NewClient creates a gate document client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.DocumentURL == "" {
		return nil, fmt.Errorf("%w: document url is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(cfg.DocumentURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		documentURL: cfg.DocumentURL,
		apiKey:      cfg.APIKey,
		bearerToken: cfg.BearerToken,
	}, nil
}

// document is the wire shape of the remote gate document. Only boolean
// fields are meaningful; anything else in the document is ignored.
type document struct {
	Fields map[string]fieldValue `json:"fields"`
}

type fieldValue struct {
	BooleanValue *bool `json:"booleanValue,omitempty"`
}

// Fetch reads the gate document and returns its boolean fields keyed by
// field name.
func (c *Client) Fetch(ctx context.Context) (map[string]bool, error) {
	reqURL, err := c.buildURL(nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRemoteUnavailable, err)
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	values := make(map[string]bool)
	for name, field := range doc.Fields {
		if field.BooleanValue != nil {
			values[name] = *field.BooleanValue
		}
	}
	return values, nil
}

// Patch writes one boolean field, masking the update to that field path
// so the rest of the document is untouched.
func (c *Client) Patch(ctx context.Context, field string, value bool) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidConfig)
	}

	reqURL, err := c.buildURL(url.Values{"updateMask.fieldPaths": {field}})
	if err != nil {
		return err
	}

	v := value
	body, err := json.Marshal(document{
		Fields: map[string]fieldValue{
			field: {BooleanValue: &v},
		},
	})
	if err != nil {
		return fmt.Errorf("encoding patch body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: patch returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	return nil
}

// buildURL appends the extra query parameters and the API key to the
// document URL.
func (c *Client) buildURL(extra url.Values) (string, error) {
	u, err := url.Parse(c.documentURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
}

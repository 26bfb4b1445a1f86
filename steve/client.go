package steve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MagicHoovy/Steve/models"
)

const (
	apiKeyHeader   = "STEVE-API-KEY"
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
)

// ErrNotFound means SteVe has nothing for the charger yet, not a failure
var ErrNotFound = errors.New("no data found")

var ErrBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBodySize)

type FetchError struct {
	ChargerId string
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.ChargerId, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.ChargerId, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	client   *http.Client
	url      string
	username string
	password string
	apiKey   string
}

func New(url, username, password, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:      strings.TrimRight(url, "/"),
		username: username,
		password: password,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Fetch requests the latest document of the charger and returns the decoded JSON
// body; checking its shape is left to the validator. It does not retry, the
// poller decides what happens after a failure.
func (c *Client) Fetch(ctx context.Context, kind models.EntityKind, chargerId string) (interface{}, error) {
	url := c.url + kind.Path(chargerId)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{ChargerId: chargerId, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{ChargerId: chargerId, Err: fmt.Errorf("sending request: %w", err)}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &FetchError{ChargerId: chargerId, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &FetchError{ChargerId: chargerId, Status: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &FetchError{ChargerId: chargerId, Status: resp.StatusCode, Err: ErrBodyTooLarge}
	}
	var data interface{}
	if err = json.Unmarshal(body, &data); err != nil {
		return nil, &FetchError{ChargerId: chargerId, Status: resp.StatusCode, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	return data, nil
}

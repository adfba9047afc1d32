package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Client is a REST client for the Monitor resource on an idigi-style
// device-data service. It is used only for monId: the push transport
// never otherwise touches it.
type Client struct {
	BaseURL  string
	Username string
	Password string

	// HTTP is the underlying HTTP client; if nil, http.DefaultClient is
	// used.
	HTTP *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "monitor: build request")
	}
	req.SetBasicAuth(c.Username, c.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "monitor: request")
	}
	return resp, nil
}

// Create creates a Monitor for the given topics and delivery parameters,
// returning the server-assigned Monitor (with ID populated).
func (c *Client) Create(ctx context.Context, m Monitor) (Monitor, error) {
	body, err := json.Marshal(toWire(m))
	if err != nil {
		return Monitor{}, errors.Wrap(err, "monitor: encode request")
	}

	resp, err := c.do(ctx, http.MethodPost, "/ws/Monitor", bytes.NewReader(body))
	if err != nil {
		return Monitor{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Monitor{}, errors.Errorf("monitor: create: unexpected status %s", resp.Status)
	}

	var w wireMonitor
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return Monitor{}, errors.Wrap(err, "monitor: decode response")
	}
	return fromWire(w)
}

// Find looks up a Monitor by its comma-joined topic list, returning nil
// if none matches.
func (c *Client) Find(ctx context.Context, topics []string) (*Monitor, error) {
	condition := fmt.Sprintf("monTopic='%s'", Monitor{Topics: topics}.topicString())
	path := "/ws/Monitor?condition=" + url.QueryEscape(condition)

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("monitor: find: unexpected status %s", resp.Status)
	}

	var results struct {
		Items []wireMonitor `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrap(err, "monitor: decode response")
	}
	if len(results.Items) == 0 {
		return nil, nil
	}
	m, err := fromWire(results.Items[0])
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes the Monitor with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/ws/Monitor/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("monitor: delete %s: unexpected status %s", id, resp.Status)
	}
	return nil
}

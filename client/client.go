// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"scriptsync/internal/remote"
)

// Client talks to the script-project HTTP API and implements remote.Store.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = time.Second * 10
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) List(ctx context.Context, containerID string) ([]remote.FileRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.projectURL(containerID, ""), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var recs []remote.FileRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, err
	}

	return recs, nil
}

func (c *Client) Read(ctx context.Context, containerID, name string) (remote.FileRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.projectURL(containerID, name), nil)
	if err != nil {
		return remote.FileRecord{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.FileRecord{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return remote.FileRecord{}, remote.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return remote.FileRecord{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var rec remote.FileRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return remote.FileRecord{}, err
	}

	return rec, nil
}

func (c *Client) Write(ctx context.Context, containerID string, rec remote.FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.projectURL(containerID, rec.Name), bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}

func (c *Client) Delete(ctx context.Context, containerID, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.projectURL(containerID, name), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return remote.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}

func (c *Client) ReplaceAll(ctx context.Context, containerID string, recs []remote.FileRecord) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.projectURL(containerID, ""), bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}

func (c *Client) projectURL(containerID, name string) string {
	u := fmt.Sprintf("%s/api/projects/%s/files", c.baseURL, url.PathEscape(containerID))
	if name != "" {
		u += "/" + url.PathEscape(name)
	}
	return u
}

// Package client is a small Go client for the package-bridge API. It
// covers the repository index, artifact downloads and the admin
// artifact routes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wp-composer/package-bridge/pkg/composer"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// FixedPassword is the placeholder basic-auth password expected by the
// server; the API key token in the username is the real credential.
const FixedPassword = "package-bridge"

type Client struct {
	repositoryURL string
	apiKey        string
	httpClient    *http.Client
}

func New(repositoryURL, apiKey string) *Client {
	return &Client{
		repositoryURL: repositoryURL,
		apiKey:        apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func artifactURL(slug, version string) string {
	return fmt.Sprintf("dist/%s/%s-%s.zip", slug, slug, version)
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.repositoryURL, endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.SetBasicAuth(c.apiKey, FixedPassword)
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return err
		}
		errResp.StatusCode = resp.StatusCode
		return &errResp
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// GetRepository fetches the packages.json index document.
func (c *Client) GetRepository(ctx context.Context) (*composer.Repository, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "packages.json", nil)
	if err != nil {
		return nil, err
	}
	var repo composer.Repository
	if err := c.decodeResponse(resp, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetPackages lists the package names exposed by the repository.
func (c *Client) GetPackages(ctx context.Context) ([]string, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "packages", nil)
	if err != nil {
		return nil, err
	}
	var pkgs []string
	if err := c.decodeResponse(resp, &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// DownloadArtifact streams the zip artifact of a release into w.
func (c *Client) DownloadArtifact(ctx context.Context, slug, version string, w io.Writer) error {
	resp, err := c.sendRequest(ctx, http.MethodGet, artifactURL(slug, version), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return err
		}
		errResp.StatusCode = resp.StatusCode
		return &errResp
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// RebuildArtifact forces a fresh build of a release's artifact.
func (c *Client) RebuildArtifact(ctx context.Context, slug, version string) error {
	resp, err := c.sendRequest(ctx, http.MethodPut, fmt.Sprintf("packages/%s/versions/%s/artifact", slug, version), nil)
	if err != nil {
		return err
	}
	var res map[string]bool
	if err := c.decodeResponse(resp, &res); err != nil {
		return err
	}
	if !res["ok"] {
		return fmt.Errorf("rebuild of %s@%s failed: reason unknown", slug, version)
	}
	return nil
}

// DeleteArtifact drops a cached artifact from storage.
func (c *Client) DeleteArtifact(ctx context.Context, slug, version string) error {
	resp, err := c.sendRequest(ctx, http.MethodDelete, fmt.Sprintf("packages/%s/versions/%s/artifact", slug, version), nil)
	if err != nil {
		return err
	}
	var res map[string]bool
	if err := c.decodeResponse(resp, &res); err != nil {
		return err
	}
	if !res["ok"] {
		return fmt.Errorf("delete of %s@%s failed: reason unknown", slug, version)
	}
	return nil
}

package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testToken = "deadbeefdeadbeefdeadbeefdeadbeef"

func newTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, testToken, user)
		require.Equal(t, FixedPassword, pass)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, testToken)
}

func TestGetRepository(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/packages.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"packages":{"acme/widget":{"1.0.0":{"name":"acme/widget","version":"1.0.0","type":"wordpress-plugin","dist":{"url":"u","type":"zip","shasum":"s"}}}}}`))
	})

	repo, err := c.GetRepository(context.Background())
	require.NoError(t, err)
	require.Contains(t, repo.Packages, "acme/widget")
	require.Equal(t, "s", repo.Packages["acme/widget"]["1.0.0"].Dist.Shasum)
}

func TestGetPackages(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/packages", r.URL.Path)
		_, _ = w.Write([]byte(`["wordpress-plugin/acme-widget"]`))
	})

	pkgs, err := c.GetPackages(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"wordpress-plugin/acme-widget"}, pkgs)
}

func TestDownloadArtifact(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dist/acme-widget/acme-widget-1.0.0.zip", r.URL.Path)
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK\x03\x04zipbytes"))
	})

	var buf bytes.Buffer
	require.NoError(t, c.DownloadArtifact(context.Background(), "acme-widget", "1.0.0", &buf))
	require.Equal(t, "PK\x03\x04zipbytes", buf.String())
}

func TestRebuildArtifact(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/packages/acme-widget/versions/1.0.0/artifact", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.RebuildArtifact(context.Background(), "acme-widget", "1.0.0"))
}

func TestDeleteArtifact(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/packages/acme-widget/versions/1.0.0/artifact", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.DeleteArtifact(context.Background(), "acme-widget", "1.0.0"))
}

func TestErrorResponse(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"package ghost not found"}`))
	})

	_, err := c.GetRepository(context.Background())
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	require.Equal(t, http.StatusNotFound, errResp.StatusCode)
	require.Equal(t, "package ghost not found", errResp.ErrorMsg)
}

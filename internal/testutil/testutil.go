// Package testutil provides HTTP testing utilities for the dashboard server.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestServer wraps httptest.Server with convenience methods
type TestServer struct {
	Server  *httptest.Server
	BaseURL string
	t       *testing.T
}

// ProjectRoot returns the root directory of the project.
// It works by finding the go.mod file.
func ProjectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("could not get caller info")
	}

	// Start from this file's directory and walk up
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// TestConfig returns environment overrides suitable for testing. Data goes to
// dataDir so every test starts from an empty portfolio.
func TestConfig(dataDir string) map[string]string {
	return map[string]string{
		"DASH_DATA_DIR":         dataDir,
		"DASH_DEBUG":            "true",
		"DASH_LISTEN_ADDR":      ":0", // Random port
		"DASH_PATH_COUNT":       "500",
		"DASH_CORS_ORIGINS":     "*",
		"DASH_PASSWORD":         "",
		"DASH_REFRESH_SCHEDULE": "",
	}
}

// SetTestEnv points the configuration at a fresh temp data directory for the
// duration of the test
func SetTestEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for k, v := range TestConfig(dir) {
		t.Setenv(k, v)
	}
	return dir
}

// NewTestServer creates a new test server using the application's router.
// The server is closed when the test ends.
func NewTestServer(t *testing.T, router http.Handler) *TestServer {
	t.Helper()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestServer{
		Server:  server,
		BaseURL: server.URL,
		t:       t,
	}
}

// GET performs a GET request to the given path
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()

	resp, err := http.Get(ts.BaseURL + path)
	if err != nil {
		ts.t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// GETWithQuery performs a GET request with query parameters
func (ts *TestServer) GETWithQuery(path string, query map[string]string) *http.Response {
	ts.t.Helper()

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	return ts.GET(path + "?" + values.Encode())
}

// GETAccept performs a GET request with an Accept header
func (ts *TestServer) GETAccept(path, accept string) *http.Response {
	ts.t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.BaseURL+path, nil)
	if err != nil {
		ts.t.Fatalf("GET %s failed: %v", path, err)
	}
	req.Header.Set("Accept", accept)
	return ts.do(req)
}

// POST performs a POST request to the given path
func (ts *TestServer) POST(path string, contentType string, body io.Reader) *http.Response {
	ts.t.Helper()

	resp, err := http.Post(ts.BaseURL+path, contentType, body)
	if err != nil {
		ts.t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// PostForm performs a form-encoded POST request
func (ts *TestServer) PostForm(path string, form url.Values) *http.Response {
	ts.t.Helper()
	return ts.POST(path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// PostJSON performs a POST request with v encoded as JSON
func (ts *TestServer) PostJSON(path string, v interface{}) *http.Response {
	ts.t.Helper()
	return ts.Request(http.MethodPost, path, v)
}

// PUT performs a form-encoded PUT request
func (ts *TestServer) PUT(path string, form url.Values) *http.Response {
	ts.t.Helper()

	req, err := http.NewRequest(http.MethodPut, ts.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		ts.t.Fatalf("PUT %s failed: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

// DELETE performs a DELETE request to the given path
func (ts *TestServer) DELETE(path string) *http.Response {
	ts.t.Helper()

	req, err := http.NewRequest(http.MethodDelete, ts.BaseURL+path, nil)
	if err != nil {
		ts.t.Fatalf("DELETE %s failed: %v", path, err)
	}
	return ts.do(req)
}

// Request performs a request with an optional JSON body
func (ts *TestServer) Request(method, path string, v interface{}) *http.Response {
	ts.t.Helper()

	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			ts.t.Fatalf("encode %s body: %v", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.BaseURL+path, body)
	if err != nil {
		ts.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.do(req)
}

func (ts *TestServer) do(req *http.Request) *http.Response {
	ts.t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// WebsocketURL returns the ws:// URL for path
func (ts *TestServer) WebsocketURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.BaseURL, "http") + path
}

// ReadBody reads and returns the response body as a string
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return string(body)
}

// DecodeJSON reads the response body into v
func DecodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

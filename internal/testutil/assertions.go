package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// ResponseAssertion chains checks over one HTTP response. The body is read
// at most once.
type ResponseAssertion struct {
	t    *testing.T
	resp *http.Response
	body *string
}

// AssertResponse starts a chain of assertions on resp
func AssertResponse(t *testing.T, resp *http.Response) *ResponseAssertion {
	t.Helper()
	return &ResponseAssertion{t: t, resp: resp}
}

// Body returns the response body, closing it on first use
func (ra *ResponseAssertion) Body() string {
	ra.t.Helper()
	if ra.body == nil {
		defer ra.resp.Body.Close()
		data, err := io.ReadAll(ra.resp.Body)
		if err != nil {
			ra.t.Fatalf("Failed to read response body: %v", err)
		}
		s := string(data)
		ra.body = &s
	}
	return *ra.body
}

func (ra *ResponseAssertion) Status(code int) *ResponseAssertion {
	ra.t.Helper()
	if ra.resp.StatusCode != code {
		ra.t.Errorf("Expected status %d, got %d: %s", code, ra.resp.StatusCode, excerpt(ra.Body()))
	}
	return ra
}

func (ra *ResponseAssertion) StatusOK() *ResponseAssertion {
	ra.t.Helper()
	return ra.Status(http.StatusOK)
}

// ContentType checks the Content-Type header contains expected
func (ra *ResponseAssertion) ContentType(expected string) *ResponseAssertion {
	ra.t.Helper()
	if ct := ra.resp.Header.Get("Content-Type"); !strings.Contains(ct, expected) {
		ra.t.Errorf("Expected Content-Type containing %q, got %q", expected, ct)
	}
	return ra
}

func (ra *ResponseAssertion) ContentTypeJSON() *ResponseAssertion {
	ra.t.Helper()
	return ra.ContentType("application/json")
}

func (ra *ResponseAssertion) ContentTypeMsgpack() *ResponseAssertion {
	ra.t.Helper()
	return ra.ContentType("application/msgpack")
}

// Contains checks the body contains substr
func (ra *ResponseAssertion) Contains(substr string) *ResponseAssertion {
	ra.t.Helper()
	if body := ra.Body(); !strings.Contains(body, substr) {
		ra.t.Errorf("Expected body to contain %q: %s", substr, excerpt(body))
	}
	return ra
}

// ErrorField checks the body is a JSON error naming the given input field
func (ra *ResponseAssertion) ErrorField(field string) *ResponseAssertion {
	ra.t.Helper()
	var e struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal([]byte(ra.Body()), &e); err != nil {
		ra.t.Errorf("Expected a JSON error body: %v: %s", err, excerpt(ra.Body()))
		return ra
	}
	if e.Error == "" || e.Field != field {
		ra.t.Errorf("Expected error for field %q, got field %q (%q)", field, e.Field, e.Error)
	}
	return ra
}

func excerpt(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Package main provides a CLI tool for validating risk server endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type endpoint struct {
	path        string
	method      string
	accept      string
	contentType string
	status      int
	contains    []string
}

var endpoints = []endpoint{
	// Portfolio
	{path: "/risk", method: "GET", contentType: "application/json", contains: []string{`"portfolio"`, `"summary"`}},
	{path: "/risk/horizons", method: "GET", contentType: "application/json", contains: []string{`"choices"`}},
	{path: "/risk", method: "GET", accept: "application/msgpack", contentType: "application/msgpack"},

	// Charts answer 404 until the first run commits
	{path: "/risk/chart/distribution", method: "GET", contentType: "application/json", status: http.StatusNotFound},
	{path: "/risk/chart/fan", method: "GET", contentType: "application/json", status: http.StatusNotFound},

	// Storage
	{path: "/storage/status", method: "GET", contentType: "application/json", contains: []string{`"encrypted"`}},

	// API
	{path: "/api/health", method: "GET", contentType: "application/json", contains: []string{`"status":"ok"`}},
	{path: "/api/version", method: "GET", contentType: "application/json", contains: []string{`"version"`}},
}

func (ep endpoint) expectedStatus() int {
	if ep.status == 0 {
		return http.StatusOK
	}
	return ep.status
}

type result struct {
	endpoint endpoint
	status   int
	duration time.Duration
	err      error
	body     string
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Base URL of the server to validate")
	verbose := flag.Bool("v", false, "Verbose output")
	timeout := flag.Int("timeout", 10, "Request timeout in seconds")
	flag.Parse()

	client := &http.Client{
		Timeout: time.Duration(*timeout) * time.Second,
	}

	fmt.Printf("Validating server at %s\n", *url)
	fmt.Printf("Testing %d endpoints...\n\n", len(endpoints))

	var passed, failed int
	var results []result

	for _, ep := range endpoints {
		r := validateEndpoint(client, *url, ep, *verbose)
		results = append(results, r)

		if r.err != nil {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Error: %v\n", r.err)
		} else if r.status != ep.expectedStatus() {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Status: %d (expected %d)\n", r.status, ep.expectedStatus())
		} else {
			passed++
			if *verbose {
				fmt.Printf("PASS %s %s (%v)\n", ep.method, ep.path, r.duration)
			}
		}
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Results: %d passed, %d failed\n", passed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}

func validateEndpoint(client *http.Client, baseURL string, ep endpoint, verbose bool) result {
	start := time.Now()

	req, err := http.NewRequest(ep.method, baseURL+ep.path, nil)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to create request: %w", err)}
	}

	if ep.accept != "" {
		req.Header.Set("Accept", ep.accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to read body: %w", err)}
	}

	duration := time.Since(start)

	r := result{
		endpoint: ep,
		status:   resp.StatusCode,
		duration: duration,
		body:     string(body),
	}

	// Validate content type
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, ep.contentType) {
		r.err = fmt.Errorf("wrong content type: got %q, expected %q", ct, ep.contentType)
		return r
	}

	// Validate the body decodes
	var decoded interface{}
	switch ep.contentType {
	case "application/json":
		if err := json.Unmarshal(body, &decoded); err != nil {
			r.err = fmt.Errorf("invalid JSON: %w", err)
			return r
		}
	case "application/msgpack":
		if err := msgpack.Unmarshal(body, &decoded); err != nil {
			r.err = fmt.Errorf("invalid msgpack: %w", err)
			return r
		}
	}

	// Validate required content
	for _, needle := range ep.contains {
		if !strings.Contains(string(body), needle) {
			r.err = fmt.Errorf("missing expected content: %q", needle)
			return r
		}
	}

	return r
}

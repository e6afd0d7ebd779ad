package behavioral

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// TraceStep is one recorded interaction from §4.5's "ordered interaction
// trace (kind, selector, input, observed outcome, captured state
// fingerprint)".
type TraceStep struct {
	Kind             string
	Selector         string
	Input            string
	Outcome          string
	StateFingerprint string
	Duration         time.Duration
	Err              string
}

// Prober is the out-of-scope collaborator the Behavioral Stage Runner
// drives: it reproduces one scenario against one base URL and returns the
// resulting trace. The example pack carries no headless-browser client, so
// the concrete adapter below replays each step as an HTTP request rather
// than driving a real browser session — see SPEC_FULL.md §2.2.
type Prober interface {
	Run(ctx context.Context, baseURL string, scenario voe.BehavioralScenario, creds *voe.BehavioralCredentials) ([]TraceStep, error)
}

// HTTPProber replays a scenario's steps as HTTP requests. Each step string
// is a small DSL: "METHOD PATH [JSON_BODY]", e.g. "POST /api/login
// {\"user\":\"alice\"}". The "selector" dimension of a TraceStep becomes the
// request path; "input" is the raw body sent. A step's state fingerprint is
// a SHA-256 prefix of the response body, standing in for the page-state
// fingerprint a real browser-driven prober would capture from the DOM.
type HTTPProber struct {
	httpClient *http.Client
}

func NewHTTPProber(httpClient *http.Client) *HTTPProber {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPProber{httpClient: httpClient}
}

func (p *HTTPProber) Run(ctx context.Context, baseURL string, scenario voe.BehavioralScenario, creds *voe.BehavioralCredentials) ([]TraceStep, error) {
	trace := make([]TraceStep, 0, len(scenario.Steps))
	for _, raw := range scenario.Steps {
		step, err := p.runStep(ctx, baseURL, raw, creds)
		trace = append(trace, step)
		if err != nil {
			return trace, err
		}
	}
	return trace, nil
}

func (p *HTTPProber) runStep(ctx context.Context, baseURL, raw string, creds *voe.BehavioralCredentials) (TraceStep, error) {
	method, path, body := parseStep(raw)
	step := TraceStep{Kind: "http", Selector: path, Input: body}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, bytes.NewReader([]byte(body)))
	if err != nil {
		step.Err = err.Error()
		return step, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	applyCredentials(req, creds)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	step.Duration = time.Since(start)
	if err != nil {
		step.Err = err.Error()
		step.Outcome = "error"
		return step, err
	}
	defer resp.Body.Close()

	raw2, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		step.Err = readErr.Error()
		return step, readErr
	}

	step.Outcome = fmt.Sprintf("status:%d", resp.StatusCode)
	step.StateFingerprint = fingerprintBody(raw2)
	return step, nil
}

func applyCredentials(req *http.Request, creds *voe.BehavioralCredentials) {
	if creds == nil {
		return
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
		return
	}
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}
}

// parseStep splits a "METHOD PATH [BODY]" step string. A single-token step
// defaults to GET against that token as the path; in a longer step the
// first token is taken as the method without checking it.
func parseStep(raw string) (method, path, body string) {
	parts := strings.SplitN(strings.TrimSpace(raw), " ", 3)
	if len(parts) == 0 {
		return http.MethodGet, "/", ""
	}
	if len(parts) == 1 {
		return http.MethodGet, parts[0], ""
	}
	method = strings.ToUpper(parts[0])
	path = parts[1]
	if len(parts) == 3 {
		body = parts[2]
	}
	return method, path, body
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:16]
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	"github.com/luissimon96/migration-validation-voe/internal/inference/client"
)

// TemperatureBand is re-exported for callers that only import this package.
type TemperatureBand = fingerprint.TemperatureBand

const (
	TemperatureLow    = fingerprint.TemperatureLow
	TemperatureMedium = fingerprint.TemperatureMedium
	TemperatureHigh   = fingerprint.TemperatureHigh
)

// Request is the Dispatcher's input envelope (§3 "LLM Envelope").
type Request struct {
	Model         string
	SystemPrompt  string
	UserPrompt    string
	Context       map[string]any
	MaxTokens     int
	Temperature   TemperatureBand
	SchemaName    string
	Schema        map[string]any
}

// Response is the Dispatcher's output envelope.
type Response struct {
	Content       string
	TokensUsed    int
	EstimatedCost float64
	LatencyMS     int64
	Provider      string
	CacheHit      bool
}

// Provider is one LLM backend the Dispatcher can route a Request to.
type Provider interface {
	Name() string
	HostsModel(model string) bool
	Complete(ctx context.Context, req Request) (Response, error)
}

// httpProvider adapts an inference client.Client (an HTTP-transport LLM
// gateway) to the Provider interface the Dispatcher consumes.
type httpProvider struct {
	name   string
	models map[string]bool
	cli    *client.Client
}

// NewHTTPProvider wraps an already-constructed inference client as a named
// Provider pinned to the given model identifiers. An empty models list
// means the provider hosts any model the caller asks for.
func NewHTTPProvider(name string, models []string, cli *client.Client) Provider {
	set := make(map[string]bool, len(models))
	for _, m := range models {
		set[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return &httpProvider{name: name, models: set, cli: cli}
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) HostsModel(model string) bool {
	if len(p.models) == 0 {
		return true
	}
	return p.models[strings.ToLower(strings.TrimSpace(model))]
}

func (p *httpProvider) Complete(ctx context.Context, req Request) (Response, error) {
	var (
		content string
		err     error
	)
	if req.SchemaName != "" && req.Schema != nil {
		obj, jerr := p.cli.GenerateJSON(ctx, req.SystemPrompt, req.UserPrompt, req.SchemaName, req.Schema)
		if jerr != nil {
			return Response{}, classifyError(jerr)
		}
		raw, merr := marshalCompact(obj)
		if merr != nil {
			return Response{}, NewUnparseableError(merr)
		}
		content = raw
	} else {
		content, err = p.cli.GenerateText(ctx, req.SystemPrompt, req.UserPrompt)
		if err != nil {
			return Response{}, classifyError(err)
		}
	}

	return Response{
		Content:  content,
		Provider: p.name,
	}, nil
}

// classifyError maps an inference client.HTTPError onto the recoverable /
// non-recoverable split the Dispatcher's retry policy needs: network
// errors and 5xx are recoverable, 429 is recoverable (rate-limited, worth
// retrying), everything else 4xx is not.
func classifyError(err error) error {
	var herr *client.HTTPError
	if errors.As(err, &herr) {
		if herr.StatusCode == http.StatusTooManyRequests || herr.StatusCode >= 500 {
			return &RecoverableError{cause: herr}
		}
		return &NonRecoverableError{cause: herr}
	}
	return &RecoverableError{cause: err}
}

// RecoverableError marks a provider failure the Dispatcher should retry or
// fail over on (timeout, 5xx, network, 429).
type RecoverableError struct{ cause error }

func (e *RecoverableError) Error() string { return e.cause.Error() }
func (e *RecoverableError) Unwrap() error  { return e.cause }

// NonRecoverableError marks a provider failure the Dispatcher must not
// retry (authentication, malformed request, any 4xx other than 429).
type NonRecoverableError struct{ cause error }

func (e *NonRecoverableError) Error() string { return e.cause.Error() }
func (e *NonRecoverableError) Unwrap() error  { return e.cause }

func IsRecoverable(err error) bool {
	var r *RecoverableError
	return errors.As(err, &r)
}

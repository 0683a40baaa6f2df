package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/theoneeye/oneeye/engine/node"
)

// HTTPRequestIdentifier is the registry tag of the HTTP request node
const HTTPRequestIdentifier = "http-request"

const maxResponseBytes = 4 << 20

// HTTPRequest performs one HTTP call per invocation. It prefers the
// worker pool because its body blocks on the network round-trip.
type HTTPRequest struct {
	node.Base
	deps *Deps
}

// NewHTTPRequest creates an HTTP request node
func NewHTTPRequest(cfg *node.Config, deps *Deps) *HTTPRequest {
	return &HTTPRequest{
		Base: node.NewBase(cfg, HTTPRequestIdentifier, node.VariantBlocking, node.PoolWorkerThread, "url"),
		deps: deps,
	}
}

// Execute performs the request and records the response in the payload
func (n *HTTPRequest) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	url := n.FormString("url")
	method := strings.ToUpper(n.FormString("method"))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw := n.FormString("body"); raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.deps.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	out := input.Derive(n.Config().ID, "http_request")
	key := node.UniqueOutputKey(input, "http_request")
	out.Data[key] = map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
	}
	return out, nil
}

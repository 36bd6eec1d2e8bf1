package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
	"golang.org/x/time/rate"
)

// HTTP executes an HTTP call described by cfg.Body, rate-limited the
// way the teacher's infrastructure/ratelimit package guards outbound
// calls, adapted here to a per-tool client-side limiter rather than a
// per-tenant API gate.
type HTTP struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP returns an HTTP tool. A nil limiter is replaced by a default
// limiter of 50 requests per second with a burst of 50.
func NewHTTP(limiter *rate.Limiter) *HTTP {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(50), 50)
	}
	return &HTTP{client: &http.Client{Timeout: 30 * time.Second}, limiter: limiter}
}

// Execute issues the configured HTTP request. cfg.Body carries:
// method, url, headers (map[string]any), query (map[string]any, added
// to the URL's query string), and body (arbitrary JSON-encodable
// value). Header and query values are formatted with fmt.Sprint.
func (h *HTTP) Execute(ctx context.Context, cfg Config, _ ExecutionContext) (Result, error) {
	return TimedExecute(func() (Result, error) {
		method, _ := cfg.Body["method"].(string)
		if method == "" {
			method = http.MethodGet
		}
		url, _ := cfg.Body["url"].(string)
		if url == "" {
			return Result{Status: StatusError, Error: "http tool requires body.url"},
				apperrors.NewValidationError("http", "url is required")
		}

		var reqBody io.Reader
		if raw, ok := cfg.Body["body"]; ok && raw != nil {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return Result{Status: StatusError, Error: err.Error()}, err
			}
			reqBody = bytes.NewReader(encoded)
		}

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := h.limiter.Wait(reqCtx); err != nil {
			return Result{Status: StatusTimeout, Error: err.Error()}, err
		}

		req, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(method), url, reqBody)
		if err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if headers, ok := cfg.Body["headers"].(map[string]any); ok {
			for k, v := range headers {
				req.Header.Set(k, fmt.Sprint(v))
			}
		}
		if query, ok := cfg.Body["query"].(map[string]any); ok && len(query) > 0 {
			q := req.URL.Query()
			for k, v := range query {
				q.Set(k, fmt.Sprint(v))
			}
			req.URL.RawQuery = q.Encode()
		}
		if auth, ok := cfg.Auth["bearer"].(string); ok && auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if reqCtx.Err() != nil {
				return Result{Status: StatusTimeout, Error: err.Error()}, err
			}
			return Result{Status: StatusError, Error: err.Error()}, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}

		data := map[string]any{
			"status_code": resp.StatusCode,
			"headers":     flattenHeader(resp.Header),
		}
		var decoded any
		if json.Unmarshal(raw, &decoded) == nil {
			data["body"] = decoded
		} else {
			data["body"] = string(raw)
		}

		status := StatusSuccess
		if resp.StatusCode >= 400 {
			status = StatusError
		}
		return Result{Status: status, Data: data}, nil
	})
}

func flattenHeader(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

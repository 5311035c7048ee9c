package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRequestToolID is the stable identifier for the built-in HTTP tool.
const HTTPRequestToolID = "http_request"

// NewHTTPRequestTool builds the built-in HTTP request tool: a single
// "request" method supporting GET, POST, PUT, and DELETE against any
// http(s) URL, with timeout protection, header passthrough, and
// JSON-aware response formatting.
func NewHTTPRequestTool() Tool {
	return &httpRequestTool{}
}

type httpRequestTool struct{}

func (t *httpRequestTool) ToolID() string { return HTTPRequestToolID }

func (t *httpRequestTool) Methods() []Method {
	return []Method{
		{
			Name:        "request",
			Description: "Make an HTTP request (GET, POST, PUT, DELETE) to an API or web service",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"method", "url"},
				"properties": map[string]interface{}{
					"method": map[string]interface{}{
						"type":        "string",
						"description": "HTTP method: GET, POST, PUT, DELETE",
					},
					"url": map[string]interface{}{
						"type":        "string",
						"description": "Full URL to request",
					},
					"headers": map[string]interface{}{
						"type":        "string",
						"description": `Optional headers as a JSON object (e.g. {"Authorization": "Bearer token"})`,
					},
					"body": map[string]interface{}{
						"type":        "string",
						"description": "Optional request body (for POST, PUT)",
					},
					"timeout_seconds": map[string]interface{}{
						"type":        "number",
						"description": "Optional timeout in seconds (default: 30)",
					},
				},
			},
			Handler: httpRequestHandler,
			InlineMarkup: &InlineMarkupSchema{
				Tag: "http_request",
				Params: map[string]ParamSource{
					"method": {Kind: ParamFromAttribute},
					"url":    {Kind: ParamFromAttribute},
					"body":   {Kind: ParamFromContent},
				},
				Example: `<http_request method="GET" url="https://api.example.com/status"/>`,
			},
		},
	}
}

func httpRequestHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	method := strings.ToUpper(stringParam(params, "method"))
	url := stringParam(params, "url")
	headers := stringParam(params, "headers")
	body := stringParam(params, "body")

	if !isValidHTTPMethod(method) {
		return nil, fmt.Errorf("invalid HTTP method: %s", method)
	}
	if url == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://")
	}

	timeout := 30 * time.Second
	if secs, ok := numberParam(params, "timeout_seconds"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	return makeHTTPRequest(ctx, method, url, headers, body, timeout)
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func numberParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func isValidHTTPMethod(method string) bool {
	validMethods := []string{"GET", "POST", "PUT", "DELETE"}
	for _, m := range validMethods {
		if method == m {
			return true
		}
	}
	return false
}

func makeHTTPRequest(ctx context.Context, method, url, headersJSON, body string, timeout time.Duration) (string, error) {
	logInfo(ctx, "Making HTTP request", map[string]interface{}{
		"tool":         "http_request",
		"method":       method,
		"url":          url,
		"timeout_secs": timeout.Seconds(),
		"has_body":     body != "",
	})

	client := &http.Client{
		Timeout: timeout,
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		logError(ctx, "Failed to create HTTP request", map[string]interface{}{
			"tool":   "http_request",
			"method": method,
			"url":    url,
			"error":  err.Error(),
		})
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "agentrun/0.1")

	if headersJSON != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			logError(ctx, "Invalid headers JSON", map[string]interface{}{
				"tool":         "http_request",
				"headers_json": headersJSON,
				"error":        err.Error(),
			})
			return "", fmt.Errorf("invalid headers JSON: %w", err)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		logDebug(ctx, "Custom headers set", map[string]interface{}{
			"tool":         "http_request",
			"header_count": len(headers),
		})
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logError(ctx, "HTTP request failed", map[string]interface{}{
			"tool":     "http_request",
			"method":   method,
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(startTime).Milliseconds(),
		})
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logError(ctx, "Failed to read response body", map[string]interface{}{
			"tool":   "http_request",
			"method": method,
			"url":    url,
			"status": resp.StatusCode,
			"error":  err.Error(),
		})
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	logFields := map[string]interface{}{
		"tool":          "http_request",
		"method":        method,
		"url":           url,
		"status":        resp.StatusCode,
		"duration_ms":   duration.Milliseconds(),
		"response_size": len(respBody),
		"content_type":  resp.Header.Get("Content-Type"),
	}

	switch {
	case resp.StatusCode >= 500:
		logError(ctx, "HTTP request completed with server error", logFields)
	case resp.StatusCode >= 400, duration > 5*time.Second:
		logWarn(ctx, "HTTP request completed with warning", logFields)
	default:
		logInfo(ctx, "HTTP request completed successfully", logFields)
	}

	return formatHTTPResponse(method, url, resp.StatusCode, resp.Header, respBody, duration), nil
}

func formatHTTPResponse(method, url string, statusCode int, headers http.Header, body []byte, duration time.Duration) string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("HTTP %s %s\n", method, url))
	result.WriteString(fmt.Sprintf("Status: %d %s\n", statusCode, http.StatusText(statusCode)))
	result.WriteString(fmt.Sprintf("Duration: %v\n", duration))
	result.WriteString(fmt.Sprintf("Content-Length: %d bytes\n", len(body)))

	if ct := headers.Get("Content-Type"); ct != "" {
		result.WriteString(fmt.Sprintf("Content-Type: %s\n", ct))
	}

	result.WriteString("\nResponse Body:\n")

	if isJSON(headers.Get("Content-Type")) {
		var prettyJSON bytes.Buffer
		if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
			result.WriteString(prettyJSON.String())
		} else {
			result.WriteString(string(body))
		}
	} else {
		bodyStr := string(body)
		if len(bodyStr) > 1000 {
			result.WriteString(bodyStr[:1000])
			result.WriteString(fmt.Sprintf("\n... (truncated, %d more bytes)", len(bodyStr)-1000))
		} else {
			result.WriteString(bodyStr)
		}
	}

	return result.String()
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

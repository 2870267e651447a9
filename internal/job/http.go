package job

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxHTTPOutput = 4096

// HTTPAction calls a webhook. Any 2xx status is success; the (truncated)
// response body becomes the output.
type HTTPAction struct {
	Client  *http.Client
	Method  string
	URL     string
	Header  map[string]string
	Body    string
	Timeout time.Duration
}

func (a *HTTPAction) Run(ctx context.Context) Outcome {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	method := strings.ToUpper(strings.TrimSpace(a.Method))
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL, body)
	if err != nil {
		return Outcome{Output: "http: " + err.Error()}
	}
	for k, v := range a.Header {
		req.Header.Set(k, v)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Outcome{Output: "http: " + err.Error()}
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxHTTPOutput+1))
	text := strings.TrimSpace(string(b))
	if len(b) > maxHTTPOutput {
		text = strings.TrimSpace(string(b[:maxHTTPOutput])) + "..."
	}
	status := fmt.Sprintf("%s %s -> %d", method, a.URL, resp.StatusCode)
	return Outcome{
		Succeeded: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Output:    appendLine(status, text),
	}
}

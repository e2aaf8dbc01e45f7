package publisher

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// apiError drains a non-2xx response into a structured Error.
func apiError(platform string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return &Error{Platform: platform, StatusCode: resp.StatusCode, Message: msg}
}

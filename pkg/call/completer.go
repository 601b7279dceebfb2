package call

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPCompleter completes appointments through the REST API.
type HTTPCompleter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPCompleter targets the API rooted at baseURL (e.g.
// "https://telemed.example.org") and authenticates with token.
func NewHTTPCompleter(baseURL, token string, client *http.Client) *HTTPCompleter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPCompleter{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: client}
}

func (h *HTTPCompleter) Complete(ctx context.Context, appointmentID string) error {
	endpoint := fmt.Sprintf("%s/api/appointments/%s/complete", h.baseURL, url.PathEscape(appointmentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("complete appointment: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

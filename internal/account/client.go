// Package account deletes a member's account through the platform's
// delete-user-account function.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FunctionClient invokes the platform's serverless functions.
type FunctionClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewFunctionClient constructs a client rooted at the platform URL.
func NewFunctionClient(platformURL, anonKey string, timeout time.Duration) *FunctionClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FunctionClient{
		baseURL: strings.TrimRight(platformURL, "/") + "/functions/v1",
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FunctionError is a non-2xx answer from a function.
type FunctionError struct {
	Function string
	Status   int
	Message  string
}

func (e *FunctionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("function %s returned status %d", e.Function, e.Status)
	}
	return fmt.Sprintf("function %s returned status %d: %s", e.Function, e.Status, e.Message)
}

// Invoke calls POST {platform}/functions/v1/{name} with the member's bearer
// token and no body.
func (c *FunctionClient) Invoke(ctx context.Context, name, accessToken string) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &FunctionError{Function: name, Status: resp.StatusCode, Message: readFunctionMessage(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readFunctionMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 16<<10))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

// Package judgeclient calls remote execution nodes and normalizes
// their responses.
package judgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"judgehub/internal/dispatch/model"
	"judgehub/internal/dispatch/selector"
	appErr "judgehub/pkg/errors"
)

// DefaultTimeout bounds a single remote execution call.
const DefaultTimeout = 30 * time.Second

// Client invokes a remote execution node.
type Client interface {
	Execute(ctx context.Context, node selector.Node, req Request) (model.ExecutionResult, error)
}

// Request is one execution request toward a node.
type Request struct {
	SourceCode string
	LanguageID int
	Stdin      string
}

// HTTPClient implements Client over HTTP with a bounded timeout.
type HTTPClient struct {
	http    *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a client with the given per-call timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type executeRequest struct {
	SourceCode    string `json:"source_code"`
	LanguageID    int    `json:"language_id"`
	Stdin         string `json:"stdin"`
	Base64Encoded bool   `json:"base64_encoded"`
}

type executeResponse struct {
	Status struct {
		ID int `json:"id"`
	} `json:"status"`
	Stdout *string  `json:"stdout"`
	Stderr *string  `json:"stderr"`
	Time   *float64 `json:"time"`
}

// Execute sends the submission to the node and waits for the result.
// It blocks until the node answers or the timeout expires. Missing
// output fields are normalized to empty strings, missing time to zero.
func (c *HTTPClient) Execute(ctx context.Context, node selector.Node, req Request) (model.ExecutionResult, error) {
	payload := executeRequest{
		SourceCode:    req.SourceCode,
		LanguageID:    req.LanguageID,
		Stdin:         req.Stdin,
		Base64Encoded: false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.InvalidParams, "encode execution request failed")
	}

	ctxCall, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(node.URL, "/") + "/submissions?base64_encoded=false&wait=true"
	httpReq, err := http.NewRequestWithContext(ctxCall, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.RemoteNodeError, "build execution request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxCall.Err(), context.DeadlineExceeded) {
			return model.ExecutionResult{}, appErr.Wrapf(err, appErr.RemoteTimeout, "execution timed out after %s on %s", c.timeout, node.URL)
		}
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.RemoteNodeError, "call execution node %s failed: %v", node.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.RemoteNodeError, "read execution response failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		diagnostic := strings.TrimSpace(string(raw))
		if diagnostic == "" {
			diagnostic = fmt.Sprintf("execution node %s returned status %d", node.URL, resp.StatusCode)
		}
		return model.ExecutionResult{}, appErr.Newf(appErr.RemoteNodeError, "%s", diagnostic)
	}

	var decoded executeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.RemoteNodeError, "decode execution response failed")
	}

	result := model.ExecutionResult{StatusID: decoded.Status.ID}
	if decoded.Stdout != nil {
		result.Stdout = *decoded.Stdout
	}
	if decoded.Stderr != nil {
		result.Stderr = *decoded.Stderr
	}
	if decoded.Time != nil {
		result.Time = *decoded.Time
	}
	return result, nil
}

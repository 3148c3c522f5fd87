// Package graph is a minimal client for the Meta Graph API private reply
// endpoint.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the versioned Graph API root.
	DefaultBaseURL = "https://graph.facebook.com/v21.0"

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 64 * 1024
)

// OutboundError is returned when the Graph API answers with a non-2xx status.
type OutboundError struct {
	StatusCode int
	Body       string
}

func (e *OutboundError) Error() string {
	return fmt.Sprintf("graph api returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends private replies on behalf of a page.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client authenticated with a page access token. A zero
// timeout leaves requests without a client-side deadline.
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"},
	)
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = timeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type privateReplyRequest struct {
	Recipient struct {
		CommentID string `json:"comment_id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// PrivateReply sends message as a direct message to the author of commentID.
func (c *Client) PrivateReply(ctx context.Context, commentID, message string) error {
	var payload privateReplyRequest
	payload.Recipient.CommentID = commentID
	payload.Message.Text = message

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode private reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build private reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("private reply request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &OutboundError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

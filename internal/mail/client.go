// Package mail fetches messages from the Gmail REST API using an already
// authorized HTTP client.
package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the Gmail API root.
	DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	// DefaultQuery narrows the listing to Daraz OTP notifications.
	DefaultQuery = `from:daraz OR subject:"OTP"`
	// DefaultMaxResults bounds one fetch round.
	DefaultMaxResults = 10

	requestTimeout = 30 * time.Second
)

// Message is one fetched mail message with the fields the extractor needs.
type Message struct {
	ID       string
	From     string
	Subject  string
	Snippet  string
	Body     string
	Received time.Time
}

// Client talks to the mailbox API for a single account.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient wraps an authorized HTTP client. baseURL other than "" overrides
// the API root, which is how tests point it at a fake server. The handle is
// copied before the default timeout is applied, so the caller's client is
// left untouched.
func NewClient(h *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := *h
	if hc.Timeout == 0 {
		hc.Timeout = requestTimeout
	}
	return &Client{httpClient: &hc, baseURL: baseURL}
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messagePart struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messageResponse struct {
	ID           string `json:"id"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		messagePart
	} `json:"payload"`
}

// ListOTPMessages lists recent messages matching the query and fetches each
// in full. max caps the page size; 0 means DefaultMaxResults.
func (c *Client) ListOTPMessages(ctx context.Context, query string, max int) ([]Message, error) {
	if query == "" {
		query = DefaultQuery
	}
	if max <= 0 {
		max = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(max))

	var list listResponse
	if err := c.getJSON(ctx, "/users/me/messages?"+params.Encode(), &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := c.getMessage(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", ref.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *Client) getMessage(ctx context.Context, id string) (Message, error) {
	var resp messageResponse
	if err := c.getJSON(ctx, "/users/me/messages/"+id+"?format=full", &resp); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:      resp.ID,
		Snippet: resp.Snippet,
		Body:    bodyText(resp.Payload.messagePart),
	}
	for _, h := range resp.Payload.Headers {
		switch h.Name {
		case "From":
			msg.From = h.Value
		case "Subject":
			msg.Subject = h.Value
		}
	}
	if ms, err := strconv.ParseInt(resp.InternalDate, 10, 64); err == nil {
		msg.Received = time.UnixMilli(ms)
	}
	return msg, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// bodyText walks a message payload for the first text/plain part, falling
// back to text/html, then to whatever data the top-level body holds.
func bodyText(part messagePart) string {
	if text := findPart(part, "text/plain"); text != "" {
		return text
	}
	if html := findPart(part, "text/html"); html != "" {
		return html
	}
	return decodeBody(part.Body.Data)
}

func findPart(part messagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, p := range part.Parts {
		if text := findPart(p, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		// Some senders pad their base64url payloads.
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(raw)
}

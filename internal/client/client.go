// Package client talks to the mail API on behalf of IMAP sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailgate/internal/mail"
	"mailgate/internal/models"
)

var (
	ErrUnauthorized = errors.New("mail API rejected credentials")
	ErrNotFound     = errors.New("mail API resource not found")
	// ErrUnavailable covers transport failures, timeouts and 503 answers.
	ErrUnavailable = errors.New("mail API unavailable")
)

// Client is safe for concurrent use by many sessions.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL. A nil httpClient selects a
// pooled default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type apiError struct {
	Error string `json:"error"`
}

// do sends one request and decodes a JSON answer into out when non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	data, err := c.send(ctx, method, path, token, "application/json", body)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// send performs one request and returns the body of a 200 answer. Other
// statuses are mapped onto the package errors using the JSON error body.
func (c *Client) send(ctx context.Context, method, path, token, accept string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var e apiError
		_ = json.Unmarshal(data, &e)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, e.Error)
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, e.Error)
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, e.Error)
		default:
			return nil, fmt.Errorf("mail API %s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
		}
	}
	return data, nil
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth", "", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	return out.Token, nil
}

type messagesResponse struct {
	Messages []models.EmailMessage `json:"messages"`
}

// ListMessages returns every message of a folder with previews.
func (c *Client) ListMessages(ctx context.Context, token, mailbox string) ([]models.EmailMessage, error) {
	q := url.Values{}
	q.Set("mailbox", mailbox)
	q.Set("preview", "true")

	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), token, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetRawMessage returns the complete stored bytes of a message. The API
// sends them as message/rfc822 so 8-bit content is not re-encoded.
func (c *Client) GetRawMessage(ctx context.Context, token, mailbox, id string) (string, error) {
	q := url.Values{}
	q.Set("format", mail.FormatRaw)
	q.Set("mailbox", mailbox)

	data, err := c.send(ctx, http.MethodGet, "/messages/"+url.PathEscape(id)+"?"+q.Encode(), token, mail.ContentTypeRFC822, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetFlags merges update into the message's stored flags.
func (c *Client) SetFlags(ctx context.Context, token, id string, update models.FlagUpdate) (models.MessageFlags, error) {
	var out struct {
		Flags models.MessageFlags `json:"flags"`
	}
	if err := c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(id)+"/flags", token, update, &out); err != nil {
		return models.MessageFlags{}, err
	}
	return out.Flags, nil
}

// Search runs a server-side INBOX search.
func (c *Client) Search(ctx context.Context, token string, q mail.SearchQuery) ([]models.EmailMessage, error) {
	var out messagesResponse
	if err := c.do(ctx, http.MethodPost, "/search", token, q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

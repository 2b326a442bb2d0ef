// Package email sends transactional mail through the Postmark API.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendInviteCode emails a family invitation code. The code is entered in the
// app, so the mail carries both the code and a direct link.
func (c *Client) SendInviteCode(toEmail, inviterName, babyName, code string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	subject := fmt.Sprintf("%s invited you to follow %s on Nestling", inviterName, babyName)
	link := fmt.Sprintf("%s/invitations/accept?code=%s", c.baseURL, code)
	textBody := fmt.Sprintf(
		"%s invited you to join %s's family on Nestling.\n\nYour invitation code: %s\n\nOr open this link:\n%s\n\nThe invitation expires in 72 hours.",
		inviterName, babyName, code, link,
	)
	htmlBody := fmt.Sprintf(
		`<p>%s invited you to join %s's family on Nestling.</p><p>Your invitation code: <strong>%s</strong></p><p><a href="%s">Accept invitation</a></p><p>The invitation expires in 72 hours.</p>`,
		inviterName, babyName, code, link,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

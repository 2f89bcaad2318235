// Package email sends transactional mail through Postmark.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at a different Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

// NewClient creates a Postmark client. baseURL is the public address of
// the web app and is used to build links in messages.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c != nil && c.serverToken != ""
}

// Postmark groups messages in reports by tag.
const (
	TagRedemption = "redemption"
	messageStream = "outbound"
)

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

// postmarkError is the body Postmark returns with a 4xx.
type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Order is the part of a redemption shown in the confirmation email.
type Order struct {
	ItemName        string
	Quantity        int
	PointsSpent     int
	DeliveryAddress string
}

// SendRedemptionConfirmation emails a citizen the summary of an eco-store order.
func (c *Client) SendRedemptionConfirmation(ctx context.Context, toEmail, name string, o Order) error {
	if name == "" {
		name = "there"
	}
	link := c.baseURL + "/store/orders"
	text := fmt.Sprintf(
		"Hi %s,\n\nYour eco-store order is confirmed.\n\nItem: %s\nQuantity: %d\nEco-points spent: %d\nDelivery address: %s\n\nTrack your orders at %s\n",
		name, o.ItemName, o.Quantity, o.PointsSpent, o.DeliveryAddress, link,
	)
	body := fmt.Sprintf(
		`<p>Hi %s,</p><p>Your eco-store order is confirmed.</p><ul><li>Item: %s</li><li>Quantity: %d</li><li>Eco-points spent: %d</li><li>Delivery address: %s</li></ul><p><a href="%s">Track your orders</a></p>`,
		html.EscapeString(name), html.EscapeString(o.ItemName), o.Quantity, o.PointsSpent, html.EscapeString(o.DeliveryAddress), link,
	)
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  "Your Niramay order is confirmed",
		TextBody: text,
		HtmlBody: body,
		Tag:      TagRedemption,
	})
}

// SendNotification emails a plain notification with a link back to the
// app. tag is the notification type.
func (c *Client) SendNotification(ctx context.Context, toEmail, title, message, tag, path string) error {
	link := c.baseURL + path
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  title,
		TextBody: fmt.Sprintf("%s\n\n%s\n", message, link),
		HtmlBody: fmt.Sprintf(`<p>%s</p><p><a href="%s">Open Niramay</a></p>`, html.EscapeString(message), link),
		Tag:      tag,
	})
}

func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}
	msg.From = c.fromEmail
	msg.MessageStream = messageStream

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
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
		var pe postmarkError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&pe); err == nil && pe.Message != "" {
			return fmt.Errorf("postmark API error %d: %s (status %d)", pe.ErrorCode, pe.Message, resp.StatusCode)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}

// Package mailer hands composed messages to the remote mail-sending
// function.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotConfigured is returned when no function URL has been set.
var ErrNotConfigured = errors.New("mail function url not configured")

// Envelope is JSON-encoded into the body field of the request
type Envelope struct {
	HTML           string `json:"html"`
	Text           string `json:"text"`
	IsConfirmation bool   `json:"isConfirmation,omitempty"`
	IsWelcome      bool   `json:"isWelcome,omitempty"`
	DiscountCode   string `json:"discountCode,omitempty"`
}

// Message is one mail to one recipient
type Message struct {
	To       string
	Subject  string
	Envelope Envelope
}

// Result mirrors the function's response
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type request struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Config holds the gateway settings
type Config struct {
	FunctionURL string
	APIKey      string
	From        string
	ReplyTo     string
	Timeout     time.Duration
}

// Client posts messages to the mail function
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client. A zero Timeout means 10 seconds.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Send dispatches msg. Any non-2xx status, undecodable reply or
// success=false is returned as an error alongside whatever result was read.
func (c *Client) Send(ctx context.Context, msg Message) (Result, error) {
	if c.cfg.FunctionURL == "" {
		return Result{}, ErrNotConfigured
	}

	body, err := json.Marshal(msg.Envelope)
	if err != nil {
		return Result{}, fmt.Errorf("encode envelope: %w", err)
	}
	payload, err := json.Marshal(request{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    string(body),
		From:    c.cfg.From,
		ReplyTo: c.cfg.ReplyTo,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.FunctionURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call mail function: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("read mail function response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		if resp.StatusCode/100 != 2 {
			return Result{}, fmt.Errorf("mail function returned %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("decode mail function response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return res, fmt.Errorf("mail function returned %d: %s", resp.StatusCode, res.Message)
	}
	if !res.Success {
		return res, fmt.Errorf("mail function rejected message: %s", res.Message)
	}
	return res, nil
}

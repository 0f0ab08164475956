// Package whatsapp sends WhatsApp messages through the Fonnte API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/notify"
)

const (
	serviceName      = "WhatsApp service"
	maxErrorBodySize = 1024
	defaultTimeout   = 30 * time.Second
)

var nonPhoneChars = regexp.MustCompile(`[^0-9]`)

type (
	Client struct {
		url         string
		token       string
		countryCode string
		http        *http.Client
	}

	sendRequest struct {
		Target      string `json:"target"`
		Message     string `json:"message"`
		CountryCode string `json:"countryCode"`
	}

	sendResponse struct {
		Status bool   `json:"status"`
		Reason string `json:"reason"`
	}
)

var _ notify.Sender = (*Client)(nil)

func NewClient(conf core.WhatsAppConfig, httpClient ...*http.Client) *Client {
	c := &Client{
		url:         conf.URL,
		token:       strings.TrimSpace(conf.Token),
		countryCode: conf.CountryCode,
		http:        &http.Client{Timeout: defaultTimeout},
	}
	if len(httpClient) > 0 && httpClient[0] != nil {
		c.http = httpClient[0]
	}
	return c
}

func (c *Client) Check() error {
	if c.token == "" {
		return core.NewConfigurationError("WHATSAPP_TOKEN", serviceName)
	}
	return nil
}

// Send makes a single delivery attempt.
func (c *Client) Send(ctx context.Context, target, message string) error {
	if err := c.Check(); err != nil {
		return err
	}
	target = NormalizeTarget(target)
	if target == "" {
		return errors.New("empty target number")
	}

	payload, err := json.Marshal(sendRequest{Target: target, Message: message, CountryCode: c.countryCode})
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.NewConnectivityError(serviceName, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.NewUpstreamError(serviceName, res.StatusCode, strings.TrimSpace(string(body)))
	}

	// Fonnte answers 200 with status false on rejected messages
	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err == nil && !sr.Status {
		return core.NewUpstreamError(serviceName, res.StatusCode, sr.Reason)
	}
	return nil
}

// NormalizeTarget keeps the digits of a phone number.
func NormalizeTarget(target string) string {
	return nonPhoneChars.ReplaceAllString(target, "")
}

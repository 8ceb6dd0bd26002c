// Package captcha reads CAPTCHA images through the TrueCaptcha OCR API.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var (
	ErrMissingCredentials = errors.New("captcha service credentials are not configured")
	ErrNoResult           = errors.New("captcha service returned no result")
)

type Client struct {
	url    string
	userID string
	apiKey string
	http   *retryablehttp.Client
	log    *slog.Logger
}

func NewClient(cfg *config.CaptchaConfig, log *slog.Logger) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = log
	httpClient.RetryMax = cfg.Retries
	httpClient.RetryWaitMin = 200 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = cfg.RequestTimeout

	return &Client{
		url:    cfg.URL,
		userID: cfg.UserID,
		apiKey: cfg.ApiKey,
		http:   httpClient,
		log:    log,
	}
}

// Solve sends the base64 encoded image and returns the recognised text.
func (c *Client) Solve(ctx context.Context, imageBase64 string) (string, error) {
	if c.userID == "" || c.apiKey == "" {
		return "", ErrMissingCredentials
	}
	body, err := jsoniter.Marshal(map[string]string{
		"userid": c.userID,
		"apikey": c.apiKey,
		"data":   imageBase64,
	})
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("captcha request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read captcha response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("captcha service responded with status %d", resp.StatusCode)
	}

	result := gjson.GetBytes(payload, "result")
	if !result.Exists() || strings.TrimSpace(result.String()) == "" {
		c.log.Error("captcha service returned no result.", slog.String("body", string(payload)))
		if msg := gjson.GetBytes(payload, "error").String(); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrNoResult, msg)
		}
		return "", ErrNoResult
	}
	c.log.Debug("captcha service answered.", slog.String("result", result.String()))
	return strings.TrimSpace(result.String()), nil
}

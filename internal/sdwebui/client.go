package sdwebui

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

	"github.com/rs/zerolog/log"
)

const (
	progressPath = "/sdapi/v1/progress"
	txt2imgPath  = "/sdapi/v1/txt2img"
	img2imgPath  = "/sdapi/v1/img2img"

	DefaultTimeout      = 5 * time.Minute
	DefaultProbeTimeout = 5 * time.Second
)

type Config struct {
	Host         string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
}

// Client talks to a Stable Diffusion WebUI instance. Timeouts are applied
// per call through the context so the probe and the generation can differ.
type Client struct {
	host         string
	timeout      time.Duration
	probeTimeout time.Duration
	httpClient   *http.Client
}

func New(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("missing host")
	}
	host = strings.TrimRight(host, "/")

	client := &Client{
		host:         host,
		timeout:      cfg.Timeout,
		probeTimeout: cfg.ProbeTimeout,
		httpClient:   cfg.HTTPClient,
	}
	if client.timeout <= 0 {
		client.timeout = DefaultTimeout
	}
	if client.probeTimeout <= 0 {
		client.probeTimeout = DefaultProbeTimeout
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}

	return client, nil
}

func (c *Client) Host() string {
	return c.host
}

// Progress queries the progress endpoint with the short probe timeout.
func (c *Client) Progress(ctx context.Context) (*ProgressResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	progress := &ProgressResponse{}
	if err := c.do(ctx, http.MethodGet, progressPath, nil, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// Available reports whether the progress endpoint answered with 200 in time.
func (c *Client) Available(ctx context.Context) bool {
	if _, err := c.Progress(ctx); err != nil {
		log.Warn().Err(err).Str("host", c.host).Msg("Stable Diffusion WebUI not available")
		return false
	}
	return true
}

func (c *Client) TextToImage(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return c.generate(ctx, txt2imgPath, req)
}

func (c *Client) ImageToImage(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return c.generate(ctx, img2imgPath, req)
}

func (c *Client) generate(ctx context.Context, path string, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &GenerateResponse{}
	if err := c.do(ctx, http.MethodPost, path, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	url := c.host + path

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", response.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Stable Diffusion API call")

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		log.Error().Str("url", url).Str("body", truncate(respBody, 512)).Msg("Unexpected API response")
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if json.Valid(body) {
		apiErr.Raw = json.RawMessage(body)
		// Non-object bodies leave the structured fields empty.
		_ = json.Unmarshal(body, apiErr)
	}
	return apiErr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package model invokes the external chat-completions models that back the
// extraction, NER and review stages. Each stage carries its own model
// configuration; the client itself is provider-agnostic.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/internal/common"
)

// Message is one chat message. Content is either a plain string or a list
// of multimodal parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart and ImagePart are the multimodal content parts the extraction
// stage sends for image and PDF inputs.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImagePart struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

func NewImagePart(dataURL string) ImagePart {
	var p ImagePart
	p.Type = "image_url"
	p.ImageURL.URL = dataURL
	return p
}

// Client is a thin chat-completions HTTP client.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, log: logger}
}

// Chat sends one chat-completions request under the stage config and
// returns the raw response body.
func (c *Client) Chat(ctx context.Context, cfg common.StageModelConfig, messages []Message) ([]byte, error) {
	if cfg.Model == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "stage model not configured")
	}

	body := map[string]any{
		"model":       cfg.Model,
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"messages":    messages,
	}
	if cfg.JSONResponse {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	raw, _, err := c.sendJSON(ctx, endpoint, body, headers)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.Model, err)
	}
	return raw, nil
}

// sendJSON posts a JSON body and returns the raw response. Callers decide
// the URL and headers; nothing here assumes a particular provider.
func (c *Client) sendJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		c.log.Error("model.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		c.log.Error("model.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.log.Info("model.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("model.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("model.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.log.Info("model.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, resp.StatusCode, nil
}

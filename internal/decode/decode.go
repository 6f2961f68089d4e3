// Package decode handles the shape-shifting payloads that come back from
// model providers. Responses arrive as chat completions whose message
// content is sometimes a JSON-encoded string and sometimes an already
// structured object; everything is decoded and validated here so that no
// unrecognized shape ever reaches the comparison or reconciliation logic.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/docscreen-io/docscreen/internal/common"
)

// ChatResponse is the provider response envelope we depend on.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Content extracts choices[0].message.content from a raw chat response.
// The returned bytes are the content itself: if the provider sent a JSON
// string, the string is unquoted; if it sent an object, the object's raw
// JSON is returned unchanged.
func Content(raw []byte) ([]byte, error) {
	var cc ChatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}
	return unwrapContent(cc.Choices[0].Message.Content)
}

// unwrapContent turns a content value into usable bytes. String content is
// unquoted; any other JSON value passes through as-is.
func unwrapContent(content json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message content")
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("unquote content string: %w", err)
	}
	return []byte(s), nil
}

// Text extracts choices[0].message.content as plain text, the shape the
// extraction stage produces.
func Text(raw []byte) (string, error) {
	b, err := Content(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// malformed wraps a shape problem in the taxonomy error callers match on.
func malformed(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, common.ErrMalformedEntityData)
	}
	return fmt.Errorf("%s: %v: %w", msg, cause, common.ErrMalformedEntityData)
}

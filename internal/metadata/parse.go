package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Response is the record the completion service must return.
type Response struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
}

var (
	ErrNotObject    = errors.New("response is not a JSON object")
	ErrTrailingData = errors.New("trailing data after JSON object")
	ErrEmptyTitle   = errors.New("response has an empty title")
)

// ParseResponse decodes text strictly: one JSON object, known keys only,
// correct types, and a non-empty title.
func ParseResponse(text string) (Response, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Response{}, ErrNotObject
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()

	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decoding metadata: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Response{}, ErrTrailingData
	}
	if strings.TrimSpace(resp.Title) == "" {
		return Response{}, ErrEmptyTitle
	}
	return resp, nil
}

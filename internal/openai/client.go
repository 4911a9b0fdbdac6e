// Package openai is a small REST client for the chat completion and audio
// transcription endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvcoi/ytup/internal/apperr"
)

const maxErrorBody = 4 << 10

var allowedAudioExts = map[string]struct{}{
	".mp3":  {},
	".mp4":  {},
	".m4a":  {},
	".wav":  {},
	".webm": {},
	".mpeg": {},
	".mpga": {},
}

// ErrNoChoices is returned when a completion carries no message.
var ErrNoChoices = errors.New("openai returned no choices")

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai api error: status %d type %s message %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai api error: status %d body %s", e.StatusCode, e.Message)
}

type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	HTTPClient      *http.Client
}

type Client struct {
	apiKey          string
	baseURL         string
	model           string
	transcribeModel string
	httpClient      *http.Client
}

func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Client{
		apiKey:          opts.APIKey,
		baseURL:         base,
		model:           opts.Model,
		transcribeModel: opts.TranscribeModel,
		httpClient:      client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Complete sends one system and one user message and returns the trimmed
// content of the first choice. JSON mode is requested for models that support
// it, so the reply is a bare object.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.ensureAPIKey(); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	if supportsJSONMode(c.model) {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode completion payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.do(req, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Transcribe uploads the audio file at path and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	if err := c.ensureAPIKey(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := allowedAudioExts[ext]; !ok {
		return "", apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("unsupported audio format %q", ext))
	}

	file, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("open audio file: %w", err))
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var payload struct {
		Text string `json:"text"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.Text), nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CategoryNetwork, fmt.Errorf("openai request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode openai response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Wrap(apperr.CategoryAuth, apiErr)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return apperr.Wrap(apperr.CategoryNetwork, apiErr)
	}
	return apiErr
}

func (c *Client) ensureAPIKey() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return apperr.Wrap(apperr.CategoryAuth, errors.New("openai api key is not configured"))
	}
	return nil
}

// Snapshots that reject response_format json_object.
var noJSONMode = map[string]bool{
	"gpt-4":              true,
	"gpt-4-0314":         true,
	"gpt-4-0613":         true,
	"gpt-4-32k":          true,
	"gpt-4-32k-0613":     true,
	"gpt-3.5-turbo-0613": true,
}

func supportsJSONMode(model string) bool {
	return !noJSONMode[strings.ToLower(strings.TrimSpace(model))]
}
